package stream

import (
	"encoding/json"
	"fmt"
)

type dataEnvelope struct {
	Type Kind `json:"type"`
	Data any  `json:"data"`
}

type textData struct {
	Text string `json:"text"`
}

type thinkingData struct {
	Text      string `json:"text"`
	Signature string `json:"signature"`
}

type toolCallWire struct {
	Type       Kind           `json:"type"`
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args"`
}

type toolResultWire struct {
	Type       Kind   `json:"type"`
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
}

type finishData struct {
	FinishReason FinishReason `json:"finishReason"`
	Message      string       `json:"message,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`
	TotalCostUSD float64      `json:"totalCostUsd,omitempty"`
	DurationMs   int64        `json:"durationMs,omitempty"`
	NumTurns     int          `json:"numTurns,omitempty"`
	SessionID    string       `json:"sessionId,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e System) MarshalJSON() ([]byte, error) {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return json.Marshal(dataEnvelope{Type: KindSystem, Data: payload})
}

// MarshalJSON implements json.Marshaler.
func (e Text) MarshalJSON() ([]byte, error) {
	return json.Marshal(dataEnvelope{Type: KindText, Data: textData{Text: e.Text}})
}

// MarshalJSON implements json.Marshaler.
func (e Thinking) MarshalJSON() ([]byte, error) {
	return json.Marshal(dataEnvelope{Type: KindThinking, Data: thinkingData{Text: e.Text, Signature: e.Signature}})
}

// MarshalJSON implements json.Marshaler.
func (e ToolCall) MarshalJSON() ([]byte, error) {
	args := e.Args
	if args == nil {
		args = map[string]any{}
	}
	return json.Marshal(toolCallWire{Type: KindToolCall, ToolCallID: e.ToolCallID, ToolName: e.ToolName, Args: args})
}

// MarshalJSON implements json.Marshaler.
func (e ToolResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(toolResultWire{Type: KindToolResult, ToolCallID: e.ToolCallID, Result: e.Result})
}

// MarshalJSON implements json.Marshaler.
func (e Finish) MarshalJSON() ([]byte, error) {
	return json.Marshal(dataEnvelope{Type: KindFinish, Data: finishData{
		FinishReason: e.Reason,
		Message:      e.Message,
		Usage:        e.Usage,
		TotalCostUSD: e.TotalCostUSD,
		DurationMs:   e.DurationMs,
		NumTurns:     e.NumTurns,
		SessionID:    e.SessionID,
	}})
}

// MarshalJSON implements json.Marshaler.
func (e Data) MarshalJSON() ([]byte, error) {
	if e.ArtifactType == "" {
		return nil, fmt.Errorf("stream: data event without artifact type")
	}
	return json.Marshal(dataEnvelope{Type: e.Kind(), Data: e.Payload})
}

// Encode marshals any event to its wire form.
func Encode(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", e.Kind(), err)
	}
	return b, nil
}
