package templates

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Kind selects one of a workflow's prompts.
type Kind string

const (
	System         Kind = "workflow.md"
	FirstTurn      Kind = "first_turn.md"
	FollowUp       Kind = "follow_up.md"
	FollowUpSystem Kind = "follow_up_system.md"
)

// ErrNoTemplate is returned when a workflow does not define the requested prompt.
var ErrNoTemplate = errors.New("template not defined")

// Repo is a cloned repository as seen by templates.
type Repo struct {
	Dir string
	URL string
}

// Data is the render context shared by every prompt.
type Data struct {
	SessionID    string
	WorkspaceDir string
	// Message is the content of the user message being answered.
	Message      string
	Repositories []Repo
	// Sources are the per-source folder names of the testcase workflow.
	Sources []string
	Inputs  map[string]any
}

// frontmatter is the YAML header of workflow.md.
type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
}

const frontmatterDelimiter = "---"

// Workflow is the parsed template set of one workflow.
type Workflow struct {
	ID          string
	Name        string
	Description string
	Category    string

	prompts map[Kind]*template.Template
}

// Has reports whether the workflow defines kind.
func (w *Workflow) Has(kind Kind) bool {
	_, ok := w.prompts[kind]
	return ok
}

// Render executes one prompt. The result is trimmed of surrounding whitespace.
func (w *Workflow) Render(kind Kind, data Data) (string, error) {
	tmpl, ok := w.prompts[kind]
	if !ok {
		return "", fmt.Errorf("%s/%s: %w", w.ID, kind, ErrNoTemplate)
	}
	if data.Inputs == nil {
		data.Inputs = map[string]any{}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s/%s: %w", w.ID, kind, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Set is the loaded catalog keyed by workflow id.
type Set map[string]*Workflow

// IDs returns the workflow ids in sorted order.
func (s Set) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Load parses the embedded templates.
func Load() (Set, error) {
	return LoadFS(workflowTemplates, "workflows")
}

// LoadDir parses templates from a directory on disk laid out like the
// embedded one. Workflows found there replace the embedded ones.
func LoadDir(dir string) (Set, error) {
	set, err := Load()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return set, nil
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("checking template directory: %w", err)
	}
	overrides, err := LoadFS(os.DirFS(dir), ".")
	if err != nil {
		return nil, err
	}
	for id, wf := range overrides {
		set[id] = wf
	}
	return set, nil
}

// LoadFS parses every workflow directory below dir in fsys. A directory
// without workflow.md is skipped.
func LoadFS(fsys fs.FS, dir string) (Set, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading template directory: %w", err)
	}

	set := make(Set)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		wf, err := loadWorkflow(fsys, path.Join(dir, entry.Name()), entry.Name())
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		set[wf.ID] = wf
	}
	return set, nil
}

func loadWorkflow(fsys fs.FS, dir, id string) (*Workflow, error) {
	// Use path.Join (not filepath.Join) for embedded filesystems which always use forward slashes
	content, err := fs.ReadFile(fsys, path.Join(dir, string(System)))
	if err != nil {
		return nil, err
	}
	fm, body, err := parseFrontmatter(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing %s/%s: %w", id, System, err)
	}

	wf := &Workflow{
		ID:          id,
		Name:        fm.Name,
		Description: fm.Description,
		Category:    fm.Category,
		prompts:     make(map[Kind]*template.Template),
	}
	if wf.prompts[System], err = parse(id, System, body); err != nil {
		return nil, err
	}

	for _, kind := range []Kind{FirstTurn, FollowUp, FollowUpSystem} {
		src, err := fs.ReadFile(fsys, path.Join(dir, string(kind)))
		if errors.Is(err, fs.ErrNotExist) {
			if kind == FollowUpSystem {
				continue
			}
			return nil, fmt.Errorf("%s: missing %s", id, kind)
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s/%s: %w", id, kind, err)
		}
		if wf.prompts[kind], err = parse(id, kind, string(src)); err != nil {
			return nil, err
		}
	}
	return wf, nil
}

func parse(id string, kind Kind, src string) (*template.Template, error) {
	tmpl, err := template.New(id + "/" + string(kind)).Option("missingkey=zero").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s/%s: %w", id, kind, err)
	}
	return tmpl, nil
}

// parseFrontmatter splits YAML frontmatter from the body that follows it.
func parseFrontmatter(content string) (frontmatter, string, error) {
	var fm frontmatter

	if !strings.HasPrefix(content, frontmatterDelimiter) {
		return fm, "", fmt.Errorf("content does not start with frontmatter delimiter")
	}

	rest := content[len(frontmatterDelimiter):]
	yamlContent, body, found := strings.Cut(rest, "\n"+frontmatterDelimiter)
	if !found {
		return fm, "", fmt.Errorf("no closing frontmatter delimiter found")
	}
	yamlContent = strings.TrimPrefix(yamlContent, "\n")

	decoder := yaml.NewDecoder(bytes.NewReader([]byte(yamlContent)))
	if err := decoder.Decode(&fm); err != nil {
		return fm, "", fmt.Errorf("parsing YAML: %w", err)
	}
	if fm.Name == "" {
		return fm, "", fmt.Errorf("frontmatter missing required field: name")
	}
	return fm, strings.TrimPrefix(body, "\n"), nil
}
