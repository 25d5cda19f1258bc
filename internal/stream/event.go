// Package stream defines the normalized execution-event protocol that is sent
// to front-end consumers.
//
// Every element of an outgoing stream is one of the concrete event types in
// this package. Event is sealed: only types declared here implement it, so a
// type switch over System, Text, Thinking, ToolCall, ToolResult, Finish and
// Data is exhaustive.
//
// Each type marshals to a single JSON object:
//
//	{"type":"system","data":{...}}
//	{"type":"text","data":{"text":"..."}}
//	{"type":"thinking","data":{"text":"...","signature":"..."}}
//	{"type":"tool_call","toolCallId":"...","toolName":"...","args":{...}}
//	{"type":"tool_result","toolCallId":"...","result":...}
//	{"type":"finish","data":{"finishReason":"stop"|"error", ...}}
//	{"type":"data-<artifact_type>","data":{...}}
package stream

import "strings"

// Kind identifies the wire type of an event.
type Kind string

const (
	KindSystem     Kind = "system"
	KindText       Kind = "text"
	KindThinking   Kind = "thinking"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindFinish     Kind = "finish"
)

// DataKindPrefix prefixes the kind of every synthesized artifact event.
const DataKindPrefix = "data-"

// DataKind returns the event kind for an artifact type, e.g. "data-epic".
func DataKind(artifactType string) Kind {
	return Kind(DataKindPrefix + artifactType)
}

// IsData reports whether k is a synthesized artifact kind.
func (k Kind) IsData() bool {
	return strings.HasPrefix(string(k), DataKindPrefix)
}

// Event is one element of an execution stream.
type Event interface {
	Kind() Kind
	isEvent()
}

// FinishReason is the terminal status of a stream.
type FinishReason string

const (
	FinishStop  FinishReason = "stop"
	FinishError FinishReason = "error"
)

// System carries upstream runtime metadata. Payload is the runtime's own
// message with the "type" discriminator removed.
type System struct {
	Payload map[string]any
}

// SessionID returns the upstream session id carried by the payload, if any.
func (e System) SessionID() string {
	if e.Payload == nil {
		return ""
	}
	id, _ := e.Payload["session_id"].(string)
	return id
}

// Text is free-form assistant text.
type Text struct {
	Text string
}

// Thinking is a reasoning segment. Signature is either minted when the segment
// was extracted from inline text or passed through from the runtime.
type Thinking struct {
	Text      string
	Signature string
}

// ToolCall is a tool invocation. ToolName is the capability name, not the
// runtime's native tool identifier.
type ToolCall struct {
	ToolCallID string
	ToolName   string
	Args       map[string]any
}

// ToolResult is the outcome of the ToolCall with the same ToolCallID.
type ToolResult struct {
	ToolCallID string
	Result     any
}

// Usage holds token accounting reported with a Finish.
type Usage struct {
	InputTokens              int `json:"inputTokens"`
	OutputTokens             int `json:"outputTokens"`
	CacheReadInputTokens     int `json:"cacheReadInputTokens,omitempty"`
	CacheCreationInputTokens int `json:"cacheCreationInputTokens,omitempty"`
}

// Finish is the terminal event. A stream carries at most one.
type Finish struct {
	Reason       FinishReason
	Message      string
	Usage        *Usage
	TotalCostUSD float64
	DurationMs   int64
	NumTurns     int
	SessionID    string
}

// Data is a synthesized artifact event that replaces a file-write tool result.
type Data struct {
	ArtifactType string
	Payload      any
}

func (System) Kind() Kind     { return KindSystem }
func (Text) Kind() Kind       { return KindText }
func (Thinking) Kind() Kind   { return KindThinking }
func (ToolCall) Kind() Kind   { return KindToolCall }
func (ToolResult) Kind() Kind { return KindToolResult }
func (Finish) Kind() Kind     { return KindFinish }
func (e Data) Kind() Kind     { return DataKind(e.ArtifactType) }

func (System) isEvent()     {}
func (Text) isEvent()       {}
func (Thinking) isEvent()   {}
func (ToolCall) isEvent()   {}
func (ToolResult) isEvent() {}
func (Finish) isEvent()     {}
func (Data) isEvent()       {}

// ErrorFinish builds the terminal event for an upstream failure.
func ErrorFinish(message string) Finish {
	return Finish{Reason: FinishError, Message: message}
}
