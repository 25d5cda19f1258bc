package artifacts

import (
	"path"
	"strings"
)

// Test-case artifact types.
const (
	TypeSource   = "source"
	TypeTestcase = "testcase"
)

// TestcaseClassifier recognizes files inside per-source folders
// artifacts/<source-key>/. source.json describes the source wherever it is
// written, including directly under artifacts/; every other JSON file is a
// test case and gets the folder name injected as source_key. Test cases
// directly under artifacts/ belong to no source and are declined.
type TestcaseClassifier struct {
	anchored
}

// NewTestcaseClassifier creates a classifier for a workspace.
func NewTestcaseClassifier(workspaceDir string) *TestcaseClassifier {
	return &TestcaseClassifier{anchored{workspaceDir: workspaceDir, anchor: "artifacts"}}
}

// Types implements Classifier.
func (c *TestcaseClassifier) Types() []string {
	return []string{TypeSource, TypeTestcase}
}

// Classify implements Classifier.
func (c *TestcaseClassifier) Classify(filePath string, content *string) (*Artifact, bool) {
	normalized, ok := c.normalize(filePath)
	if !ok || !isJSON(normalized) {
		return nil, false
	}
	folder := path.Base(path.Dir(normalized))

	obj, ok := decodeObject(content)
	if !ok {
		return nil, false
	}

	if path.Base(normalized) == "source.json" {
		return newArtifact(TypeSource, filePath, normalized, ContentJSON, folder, obj), true
	}
	if !strings.Contains(c.rel(normalized), "/") {
		return nil, false
	}

	id := idFrom(obj, "id")
	if id == "" {
		id = stem(normalized)
	}
	obj["source_key"] = folder
	return newArtifact(TypeTestcase, filePath, normalized, ContentJSON, id, obj), true
}

// SourceKey builds the deterministic folder name for a test-case source,
// "<type>-<provider>-<identifier>" with the identifier slugged.
func SourceKey(sourceType, provider, identifier string) string {
	return slug(sourceType) + "-" + slug(provider) + "-" + slug(identifier)
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
