package client

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType identifies the kind of output event.
type EventType string

const (
	// EventSystem is runtime metadata (init is a subtype).
	EventSystem EventType = "system"
	// EventAssistant is an assistant message event.
	EventAssistant EventType = "assistant"
	// EventUser is a user-echoed message carrying tool results.
	EventUser EventType = "user"
	// EventToolResult is the legacy flat tool result line.
	EventToolResult EventType = "tool_result"
	// EventResult is the terminal result line.
	EventResult EventType = "result"
	// EventError is an error line.
	EventError EventType = "error"
)

// Content block types.
const (
	BlockText             = "text"
	BlockThinking         = "thinking"
	BlockRedactedThinking = "redacted_thinking"
	BlockToolUse          = "tool_use"
	BlockToolResult       = "tool_result"
)

// OutputEvent is one parsed line of the runtime's stream-json output.
type OutputEvent struct {
	Type      EventType `json:"type"`
	SubType   string    `json:"subtype,omitempty"`
	Timestamp time.Time `json:"-"`

	SessionID string `json:"session_id,omitempty"`
	WorkDir   string `json:"cwd,omitempty"`
	Model     string `json:"model,omitempty"`

	// Message is set on assistant and user events.
	Message *MessageContent `json:"message,omitempty"`

	// Tool is set on legacy tool_result lines.
	Tool *ToolContent `json:"tool,omitempty"`

	Usage         *UsageInfo `json:"usage,omitempty"`
	Error         *ErrorInfo `json:"error,omitempty"`
	TotalCostUSD  float64    `json:"total_cost_usd,omitempty"`
	DurationMs    int64      `json:"duration_ms,omitempty"`
	NumTurns      int        `json:"num_turns,omitempty"`
	IsErrorResult bool       `json:"is_error,omitempty"`
	Result        string     `json:"result,omitempty"`

	// Raw is the original line.
	Raw json.RawMessage `json:"-"`
}

// IsInit returns true if this is a system init event.
func (e *OutputEvent) IsInit() bool {
	return e.Type == EventSystem && e.SubType == "init"
}

// IsResult returns true if this is a result (completion) event.
func (e *OutputEvent) IsResult() bool {
	return e.Type == EventResult
}

// IsError returns true for explicit error lines and result lines with is_error set.
func (e *OutputEvent) IsError() bool {
	return e.Type == EventError || e.Error != nil || e.IsErrorResult
}

// GetErrorMessage returns the most specific error message on the event.
func (e *OutputEvent) GetErrorMessage() string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if e.IsErrorResult && e.Result != "" {
		return e.Result
	}
	if e.SubType != "" && e.IsErrorResult {
		return e.SubType
	}
	return "unknown error"
}

// MessageContent holds assistant or user message content.
type MessageContent struct {
	ID      string         `json:"id,omitempty"`
	Role    string         `json:"role,omitempty"`
	Content []ContentBlock `json:"content,omitempty"`
	Model   string         `json:"model,omitempty"`
}

// UnmarshalJSON accepts content given either as a block array or as a plain
// string, which user echoes sometimes use.
func (m *MessageContent) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      string          `json:"id"`
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
		Model   string          `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.ID, m.Role, m.Model = raw.ID, raw.Role, raw.Model
	m.Content = nil

	trimmed := strings.TrimSpace(string(raw.Content))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(raw.Content, &s); err != nil {
			return err
		}
		m.Content = []ContentBlock{{Type: BlockText, Text: s}}
		return nil
	default:
		return json.Unmarshal(raw.Content, &m.Content)
	}
}

// GetText returns the concatenated text content from all text blocks.
func (m *MessageContent) GetText() string {
	if m == nil {
		return ""
	}
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// ContentBlock is a single content block in a message.
type ContentBlock struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ToolContent holds the payload of a legacy flat tool_result line.
type ToolContent struct {
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Content string          `json:"content,omitempty"`
	Output  string          `json:"output,omitempty"`
}

// GetOutput returns the tool output, preferring Output over Content.
func (t *ToolContent) GetOutput() string {
	if t == nil {
		return ""
	}
	if t.Output != "" {
		return t.Output
	}
	return t.Content
}

// UsageInfo is the token accounting reported on result lines.
type UsageInfo struct {
	InputTokens              int `json:"input_tokens,omitempty"`
	OutputTokens             int `json:"output_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
}

// ErrorInfo holds error details.
type ErrorInfo struct {
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}
