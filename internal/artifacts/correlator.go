package artifacts

import (
	"fmt"

	"github.com/tejas96/sdlc-agents-sub000/internal/log"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestrator"
	"github.com/tejas96/sdlc-agents-sub000/internal/stream"
)

// Correlator pairs file-write tool calls with their results for one workflow
// run. It is not safe for concurrent use; each run owns its own.
type Correlator struct {
	classifier Classifier
	files      FileReader
	pending    map[string]PendingOp
}

// NewCorrelator creates a Correlator. files resolves the content of edits.
func NewCorrelator(classifier Classifier, files FileReader) *Correlator {
	return &Correlator{
		classifier: classifier,
		files:      files,
		pending:    make(map[string]PendingOp),
	}
}

// Intercept inspects one event.
//
// handled=false means forward ev unchanged. handled=true means drop ev and
// forward replacement instead when it is non-nil. A file-write ToolCall with
// an id and a path is always dropped. Its ToolResult is replaced by a Data
// event when the file classifies and dropped otherwise. A panic inside
// classification degrades to pass-through.
func (c *Correlator) Intercept(ev stream.Event) (handled bool, replacement stream.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatArtifact, "intercept panicked, passing event through",
				"kind", ev.Kind(), "panic", fmt.Sprint(r))
			handled, replacement = false, nil
		}
	}()

	switch e := ev.(type) {
	case stream.ToolCall:
		return c.onToolCall(e), nil
	case stream.ToolResult:
		return c.onToolResult(e)
	default:
		return false, nil
	}
}

// Pending returns the number of writes awaiting a result.
func (c *Correlator) Pending() int {
	return len(c.pending)
}

// Reset drops every pending write.
func (c *Correlator) Reset() {
	clear(c.pending)
}

func (c *Correlator) onToolCall(e stream.ToolCall) bool {
	if !orchestrator.IsFileWrite(e.ToolName) || e.ToolCallID == "" {
		return false
	}
	filePath, _ := e.Args["file_path"].(string)
	if filePath == "" {
		log.Debug(log.CatArtifact, "file write without path passed through", "toolCallId", e.ToolCallID)
		return false
	}

	op := PendingOp{ToolCallID: e.ToolCallID, FilePath: filePath, ToolName: e.ToolName}
	if e.ToolName == orchestrator.ToolCreateFile {
		if content, ok := e.Args["content"].(string); ok {
			op.Content = &content
		}
	}
	c.pending[e.ToolCallID] = op
	log.Debug(log.CatArtifact, "pending write", "toolCallId", e.ToolCallID, "tool", e.ToolName, "path", filePath)
	return true
}

func (c *Correlator) onToolResult(e stream.ToolResult) (bool, stream.Event) {
	op, ok := c.pending[e.ToolCallID]
	if !ok {
		return false, nil
	}
	delete(c.pending, e.ToolCallID)

	content := op.Content
	if content == nil {
		content = c.read(op.FilePath)
	}

	artifact, ok := c.classifier.Classify(op.FilePath, content)
	if !ok || artifact == nil {
		log.Debug(log.CatArtifact, "write declined", "toolCallId", e.ToolCallID, "path", op.FilePath)
		return true, nil
	}
	if !contains(c.classifier.Types(), artifact.Type) {
		log.Warn(log.CatArtifact, "classifier returned type outside its set", "type", artifact.Type, "path", op.FilePath)
		return true, nil
	}

	log.Info(log.CatArtifact, "artifact", "type", artifact.Type, "id", artifact.ID, "path", artifact.FilePath)
	return true, stream.Data{ArtifactType: artifact.Type, Payload: artifact}
}

// read returns nil when the file is missing or unreadable.
func (c *Correlator) read(filePath string) *string {
	if c.files == nil {
		return nil
	}
	data, err := c.files.ReadFile(filePath)
	if err != nil {
		log.Debug(log.CatArtifact, "edited file unreadable", "path", filePath, "error", err)
		return nil
	}
	s := string(data)
	return &s
}
