package artifacts

import "strings"

// Code-analysis artifact types. TypeIndex is shared with ticketing.
const (
	TypeFinding = "finding"
	TypeReport  = "report"
)

// CodeAnalysisClassifier recognizes artifacts/index.json, findings under
// artifacts/findings/ and the report.
type CodeAnalysisClassifier struct {
	anchored
}

// NewCodeAnalysisClassifier creates a classifier for a workspace.
func NewCodeAnalysisClassifier(workspaceDir string) *CodeAnalysisClassifier {
	return &CodeAnalysisClassifier{anchored{workspaceDir: workspaceDir, anchor: "artifacts"}}
}

// Types implements Classifier.
func (c *CodeAnalysisClassifier) Types() []string {
	return []string{TypeIndex, TypeFinding, TypeReport}
}

// Classify implements Classifier.
func (c *CodeAnalysisClassifier) Classify(filePath string, content *string) (*Artifact, bool) {
	normalized, ok := c.normalize(filePath)
	if !ok || content == nil {
		return nil, false
	}
	rel := c.rel(normalized)

	switch {
	case rel == "report.md":
		return newArtifact(TypeReport, filePath, normalized, ContentMarkdown, stem(normalized), *content), true
	case rel == "index.json", rel == "report.json":
		typ := TypeIndex
		if rel == "report.json" {
			typ = TypeReport
		}
		obj, ok := decodeObject(content)
		if !ok {
			return nil, false
		}
		id := idFrom(obj, "id")
		if id == "" {
			id = stem(normalized)
		}
		return newArtifact(typ, filePath, normalized, ContentJSON, id, obj), true
	case strings.HasPrefix(rel, "findings/") && isJSON(rel):
		obj, ok := decodeObject(content)
		if !ok {
			return nil, false
		}
		id := idFrom(obj, "finding_id", "id")
		if id == "" {
			id = stem(normalized)
		}
		return newArtifact(TypeFinding, filePath, normalized, ContentJSON, id, obj), true
	default:
		return nil, false
	}
}
