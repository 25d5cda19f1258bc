// Package artifacts turns file-writing tool calls into typed artifact events.
//
// A Correlator watches the normalized stream of one workflow run. It holds
// each create_file/edit_file ToolCall back until the ToolResult with the same
// id arrives, then asks the workflow's Classifier what the written file is.
// A recognized file replaces the ToolResult with a data-<type> event; an
// unrecognized one suppresses it.
package artifacts

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// Content types reported on artifacts.
const (
	ContentJSON       = "json"
	ContentTypeScript = "ts"
	ContentJavaScript = "js"
	ContentJava       = "java"
	ContentPython     = "py"
	ContentMarkdown   = "markdown"
	ContentText       = "text"
)

// Artifact is a classified file written by the agent.
type Artifact struct {
	Type string `json:"artifact_type"`
	// ActualFilePath is the path as the agent wrote it.
	ActualFilePath string `json:"actual_file_path"`
	// FilePath is the path relative to the workflow's anchor directory's parent,
	// e.g. "artifacts/epics/EPIC-1.json".
	FilePath    string `json:"file_path"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	ID          string `json:"artifact_id"`
	// Content is the decoded JSON document, or the raw text for other files.
	Content any `json:"content"`
}

// PendingOp is a file write awaiting its tool result.
type PendingOp struct {
	ToolCallID string
	FilePath   string
	ToolName   string
	// Content is the inline content of a create_file call; nil for edits.
	Content *string
}

// Classifier decides what a written file is for one workflow.
type Classifier interface {
	// Classify returns the artifact for path, or false to decline. content is
	// nil when the file could not be read.
	Classify(path string, content *string) (*Artifact, bool)

	// Types is the closed set of artifact types Classify may return.
	Types() []string
}

// FileReader reads files from the session workspace.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// anchored resolves agent paths against one anchor directory such as
// "artifacts" or "tests".
type anchored struct {
	workspaceDir string
	anchor       string
}

// normalize returns path rewritten to start with "<anchor>/", in slash form.
// Absolute paths inside the workspace are made relative to it; any other path
// is cut at its first "/<anchor>/" segment. Paths that cannot be anchored
// are declined.
func (a anchored) normalize(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	p = path.Clean(strings.ReplaceAll(p, `\`, "/"))
	prefix := a.anchor + "/"

	if ws := strings.TrimSuffix(strings.ReplaceAll(a.workspaceDir, `\`, "/"), "/"); ws != "" && strings.HasPrefix(p, ws+"/") {
		p = strings.TrimPrefix(p, ws+"/")
	}
	if strings.HasPrefix(p, prefix) && len(p) > len(prefix) {
		return p, true
	}
	if i := strings.Index(p, "/"+prefix); i >= 0 && len(p) > i+1+len(prefix) {
		return p[i+1:], true
	}
	return "", false
}

// rel returns the part of a normalized path below the anchor.
func (a anchored) rel(normalized string) string {
	return strings.TrimPrefix(normalized, a.anchor+"/")
}

func newArtifact(typ, actual, normalized, contentType, id string, content any) *Artifact {
	return &Artifact{
		Type:           typ,
		ActualFilePath: actual,
		FilePath:       normalized,
		Filename:       path.Base(normalized),
		ContentType:    contentType,
		ID:             id,
		Content:        content,
	}
}

// decodeObject parses content as a JSON object.
func decodeObject(content *string) (map[string]any, bool) {
	if content == nil {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(*content), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// idFrom returns the first non-empty string or number among keys.
func idFrom(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

func stem(name string) string {
	return strings.TrimSuffix(path.Base(name), path.Ext(name))
}

func isJSON(name string) bool {
	return strings.EqualFold(path.Ext(name), ".json")
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
