package artifacts

import "path"

// Ticketing artifact types.
const (
	TypeIndex = "index"
	TypeEpic  = "epic"
	TypeStory = "story"
	TypeTask  = "task"
)

var ticketDirs = map[string]string{
	"epics":   TypeEpic,
	"stories": TypeStory,
	"tasks":   TypeTask,
}

// TicketingClassifier recognizes artifacts/index.json and JSON tickets under
// epics/, stories/ and tasks/.
type TicketingClassifier struct {
	anchored
}

// NewTicketingClassifier creates a classifier for a workspace.
func NewTicketingClassifier(workspaceDir string) *TicketingClassifier {
	return &TicketingClassifier{anchored{workspaceDir: workspaceDir, anchor: "artifacts"}}
}

// Types implements Classifier.
func (c *TicketingClassifier) Types() []string {
	return []string{TypeIndex, TypeEpic, TypeStory, TypeTask}
}

// Classify implements Classifier.
func (c *TicketingClassifier) Classify(filePath string, content *string) (*Artifact, bool) {
	normalized, ok := c.normalize(filePath)
	if !ok || !isJSON(normalized) {
		return nil, false
	}

	var typ string
	if path.Base(normalized) == "index.json" {
		typ = TypeIndex
	} else if t, ok := ticketDirs[path.Base(path.Dir(normalized))]; ok {
		typ = t
	} else {
		return nil, false
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
}
