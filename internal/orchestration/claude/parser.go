package claude

import (
	"encoding/json"

	"github.com/tejas96/sdlc-agents-sub000/internal/orchestration/client"
)

// Parser implements client.EventParser for Claude CLI stream-json lines.
type Parser struct{}

// NewParser creates a Claude EventParser.
func NewParser() *Parser {
	return &Parser{}
}

// rawEvent mirrors client.OutputEvent but keeps the error field raw, since
// the CLI emits it as a string or an object depending on the failure.
type rawEvent struct {
	client.OutputEvent
	Error json.RawMessage `json:"error,omitempty"`
}

// ParseEvent converts one Claude CLI JSON line to client.OutputEvent.
func (p *Parser) ParseEvent(data []byte) (client.OutputEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return client.OutputEvent{}, err
	}

	event := raw.OutputEvent
	event.Error = client.ParsePolymorphicError(raw.Error)
	if event.Type == client.EventError && event.Error == nil {
		var msg struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &msg); err == nil && msg.Message != "" {
			event.Error = &client.ErrorInfo{Message: msg.Message}
		}
	}

	event.Raw = make([]byte, len(data))
	copy(event.Raw, data)
	return event, nil
}

// ExtractSessionRef returns the session id announced by the init event.
func (p *Parser) ExtractSessionRef(event client.OutputEvent, _ []byte) string {
	if event.IsInit() {
		return event.SessionID
	}
	return ""
}

var _ client.EventParser = (*Parser)(nil)
