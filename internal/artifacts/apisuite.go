package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/tejas96/sdlc-agents-sub000/internal/cachemanager"
	"github.com/tejas96/sdlc-agents-sub000/internal/log"
)

// API-test-suite artifact types. TypeIndex is shared with ticketing.
const TypeTest = "test"

// ManifestFile is the API-suite manifest, relative to the tests/ root.
const ManifestFile = "index.json"

const manifestTTL = 30 * time.Minute

// Manifest is the decoded tests/index.json.
type Manifest struct {
	RelevantArtifacts []string
}

// Lists reports whether filename is named by the manifest. Entries are
// compared by base name.
func (m Manifest) Lists(filename string) bool {
	for _, entry := range m.RelevantArtifacts {
		if path.Base(strings.ReplaceAll(entry, `\`, "/")) == filename {
			return true
		}
	}
	return false
}

// ParseManifest decodes an index.json document. relevantArtifacts entries may
// be strings or objects naming the file under filename, file_path or name.
func ParseManifest(data []byte) (Manifest, error) {
	var doc struct {
		RelevantArtifacts []json.RawMessage `json:"relevantArtifacts"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest: %w", err)
	}
	m := Manifest{RelevantArtifacts: make([]string, 0, len(doc.RelevantArtifacts))}
	for _, raw := range doc.RelevantArtifacts {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			m.RelevantArtifacts = append(m.RelevantArtifacts, s)
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err == nil {
			if name := idFrom(obj, "filename", "file_path", "name"); name != "" {
				m.RelevantArtifacts = append(m.RelevantArtifacts, name)
			}
		}
	}
	return m, nil
}

// APISuiteClassifier recognizes files under tests/. tests/index.json is the
// manifest; any other file must be listed in it.
type APISuiteClassifier struct {
	anchored
	manifests *cachemanager.ReadThroughCache[string, Manifest, string]
}

// NewAPISuiteClassifier creates a classifier. files loads the manifest when
// it is not cached. cache may be shared between workspaces; a nil cache gets a
// private in-memory one.
func NewAPISuiteClassifier(workspaceDir string, files FileReader, cache cachemanager.CacheManager[string, Manifest]) *APISuiteClassifier {
	if cache == nil {
		cache = cachemanager.NewInMemoryCacheManager[string, Manifest]("apisuite-manifest",
			cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	}
	load := func(_ context.Context, manifestPath string) (Manifest, error) {
		if files == nil {
			return Manifest{}, fmt.Errorf("no workspace to read %s", manifestPath)
		}
		data, err := files.ReadFile(manifestPath)
		if err != nil {
			return Manifest{}, err
		}
		return ParseManifest(data)
	}
	return &APISuiteClassifier{
		anchored:  anchored{workspaceDir: workspaceDir, anchor: "tests"},
		manifests: cachemanager.NewReadThroughCache[string, Manifest, string](cache, load, false),
	}
}

// Types implements Classifier.
func (c *APISuiteClassifier) Types() []string {
	return []string{TypeIndex, TypeTest}
}

// Classify implements Classifier.
func (c *APISuiteClassifier) Classify(filePath string, content *string) (*Artifact, bool) {
	normalized, ok := c.normalize(filePath)
	if !ok || content == nil {
		return nil, false
	}
	ctx := context.Background()
	manifestPath := c.manifestPath(filePath, normalized)
	contentType := contentTypeFor(normalized)

	if c.rel(normalized) == ManifestFile {
		obj, ok := decodeObject(content)
		if !ok {
			return nil, false
		}
		m, err := ParseManifest([]byte(*content))
		if err != nil {
			return nil, false
		}
		c.manifests.Put(ctx, c.cacheKey(manifestPath), m, manifestTTL)
		id := idFrom(obj, "id")
		if id == "" {
			id = stem(normalized)
		}
		return newArtifact(TypeIndex, filePath, normalized, ContentJSON, id, obj), true
	}

	// The agent may rewrite the manifest by other means than a classified
	// write, so it is re-read on every check. The cache covers unreadable files.
	m, err := c.manifests.Refresh(ctx, c.cacheKey(manifestPath), manifestPath, manifestTTL)
	if err != nil {
		log.Debug(log.CatArtifact, "no manifest, declining", "path", normalized, "error", err)
		return nil, false
	}
	if !m.Lists(path.Base(normalized)) {
		return nil, false
	}

	if contentType != ContentJSON {
		return newArtifact(TypeTest, filePath, normalized, contentType, stem(normalized), *content), true
	}
	obj, ok := decodeObject(content)
	if !ok {
		return nil, false
	}
	id := idFrom(obj, "id")
	if id == "" {
		id = stem(normalized)
	}
	return newArtifact(TypeTest, filePath, normalized, ContentJSON, id, obj), true
}

// manifestPath locates tests/index.json next to the anchor the file was
// written under. Paths inside the workspace yield a workspace-relative key.
func (c *APISuiteClassifier) manifestPath(actual, normalized string) string {
	cleaned := path.Clean(strings.ReplaceAll(actual, `\`, "/"))
	root := strings.TrimSuffix(cleaned, normalized)
	if ws := strings.TrimSuffix(strings.ReplaceAll(c.workspaceDir, `\`, "/"), "/"); ws != "" && root == ws+"/" {
		root = ""
	}
	return root + c.anchor + "/" + ManifestFile
}

// cacheKey makes manifest keys unique across workspaces sharing one cache.
func (c *APISuiteClassifier) cacheKey(manifestPath string) string {
	if path.IsAbs(manifestPath) || c.workspaceDir == "" {
		return manifestPath
	}
	return path.Join(strings.ReplaceAll(c.workspaceDir, `\`, "/"), manifestPath)
}

func contentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return ContentJSON
	case ".ts", ".tsx":
		return ContentTypeScript
	case ".js", ".mjs", ".cjs":
		return ContentJavaScript
	case ".java":
		return ContentJava
	case ".py":
		return ContentPython
	default:
		return ContentText
	}
}
