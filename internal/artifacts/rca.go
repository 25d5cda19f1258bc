package artifacts

import (
	"path"
	"strings"
)

// RCA artifact types. TypeIndex is shared with ticketing.
const (
	TypeRCA      = "rca"
	TypeSolution = "solution"
)

// RCAClassifier recognizes index.json, rca.json and solutions/sol-*.json.
type RCAClassifier struct {
	anchored
}

// NewRCAClassifier creates a classifier for a workspace.
func NewRCAClassifier(workspaceDir string) *RCAClassifier {
	return &RCAClassifier{anchored{workspaceDir: workspaceDir, anchor: "artifacts"}}
}

// Types implements Classifier.
func (c *RCAClassifier) Types() []string {
	return []string{TypeIndex, TypeRCA, TypeSolution}
}

// Classify implements Classifier.
func (c *RCAClassifier) Classify(filePath string, content *string) (*Artifact, bool) {
	normalized, ok := c.normalize(filePath)
	if !ok || !isJSON(normalized) {
		return nil, false
	}

	base := path.Base(normalized)
	var typ, idKey string
	switch {
	case base == "index.json":
		typ, idKey = TypeIndex, "incident_id"
	case base == "rca.json":
		typ, idKey = TypeRCA, "rca_id"
	case strings.HasPrefix(base, "sol-") && path.Base(path.Dir(normalized)) == "solutions":
		typ, idKey = TypeSolution, "solution_id"
	default:
		return nil, false
	}

	obj, ok := decodeObject(content)
	if !ok {
		return nil, false
	}
	id := idFrom(obj, idKey)
	if id == "" {
		id = stem(normalized)
	}
	return newArtifact(typ, filePath, normalized, ContentJSON, id, obj), true
}
