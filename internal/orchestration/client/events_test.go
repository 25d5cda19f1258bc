package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageContent_BlockArray(t *testing.T) {
	var m MessageContent
	err := json.Unmarshal([]byte(`{"role":"assistant","content":[
		{"type":"text","text":"a"},
		{"type":"thinking","thinking":"hmm","signature":"sig"},
		{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"x"}}
	]}`), &m)
	require.NoError(t, err)
	require.Len(t, m.Content, 3)
	require.Equal(t, "assistant", m.Role)
	require.Equal(t, "hmm", m.Content[1].Thinking)
	require.Equal(t, "sig", m.Content[1].Signature)
	require.Equal(t, "t1", m.Content[2].ID)
	require.JSONEq(t, `{"file_path":"x"}`, string(m.Content[2].Input))
}

func TestMessageContent_StringContent(t *testing.T) {
	var m MessageContent
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":"hello"}`), &m))
	require.Equal(t, []ContentBlock{{Type: BlockText, Text: "hello"}}, m.Content)
	require.Equal(t, "hello", m.GetText())
}

func TestMessageContent_NullContent(t *testing.T) {
	var m MessageContent
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":null}`), &m))
	require.Empty(t, m.Content)
}

func TestMessageContent_ToolResultBlock(t *testing.T) {
	var m MessageContent
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":[
		{"type":"tool_result","tool_use_id":"t1","content":[{"type":"text","text":"ok"}],"is_error":true}
	]}`), &m))
	require.Len(t, m.Content, 1)
	b := m.Content[0]
	require.Equal(t, BlockToolResult, b.Type)
	require.Equal(t, "t1", b.ToolUseID)
	require.True(t, b.IsError)
	require.JSONEq(t, `[{"type":"text","text":"ok"}]`, string(b.Content))
}

func TestOutputEvent_ErrorMessage(t *testing.T) {
	tests := []struct {
		name  string
		event OutputEvent
		want  string
	}{
		{"error info", OutputEvent{Type: EventError, Error: &ErrorInfo{Message: "boom"}}, "boom"},
		{"error result", OutputEvent{Type: EventResult, IsErrorResult: true, Result: "bad"}, "bad"},
		{"error subtype", OutputEvent{Type: EventResult, IsErrorResult: true, SubType: "error_max_turns"}, "error_max_turns"},
		{"nothing", OutputEvent{Type: EventError}, "unknown error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.event.IsError())
			require.Equal(t, tt.want, tt.event.GetErrorMessage())
		})
	}
}

func TestToolContent_GetOutput(t *testing.T) {
	var nilTool *ToolContent
	require.Empty(t, nilTool.GetOutput())
	require.Equal(t, "out", (&ToolContent{Output: "out", Content: "c"}).GetOutput())
	require.Equal(t, "c", (&ToolContent{Content: "c"}).GetOutput())
}

func TestParsePolymorphicError(t *testing.T) {
	require.Nil(t, ParsePolymorphicError(nil))
	require.Nil(t, ParsePolymorphicError(json.RawMessage(`null`)))

	info := ParsePolymorphicError(json.RawMessage(`{"code":"rate","message":"slow down"}`))
	require.Equal(t, &ErrorInfo{Code: "rate", Message: "slow down"}, info)

	info = ParsePolymorphicError(json.RawMessage(`"connection refused"`))
	require.Equal(t, "connection refused", info.Message)

	info = ParsePolymorphicError(json.RawMessage(`"413 {\"type\":\"error\",\"error\":{\"type\":\"invalid_request_error\",\"message\":\"Prompt is too long\"}}"`))
	require.Equal(t, "Prompt is too long", info.Message)
	require.Equal(t, "invalid_request_error", info.Code)
}
