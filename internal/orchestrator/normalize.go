package orchestrator

import (
	"encoding/json"

	"github.com/tejas96/sdlc-agents-sub000/internal/log"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestration/client"
	"github.com/tejas96/sdlc-agents-sub000/internal/stream"
)

// normalize maps one runtime line to zero or more stream events, in order.
// It reports whether the line was terminal.
func normalize(ev client.OutputEvent) ([]stream.Event, bool) {
	switch ev.Type {
	case client.EventSystem:
		return []stream.Event{systemEvent(ev)}, false

	case client.EventAssistant:
		return assistantEvents(ev.Message), false

	case client.EventUser:
		return userEvents(ev.Message), false

	case client.EventToolResult:
		if ev.Tool == nil {
			return nil, false
		}
		return []stream.Event{stream.ToolResult{ToolCallID: ev.Tool.ID, Result: ev.Tool.GetOutput()}}, false

	case client.EventResult:
		return []stream.Event{resultFinish(ev)}, true

	case client.EventError:
		return []stream.Event{stream.ErrorFinish(ev.GetErrorMessage())}, true

	default:
		log.Debug(log.CatOrch, "ignoring runtime line", "type", ev.Type)
		return nil, false
	}
}

func systemEvent(ev client.OutputEvent) stream.System {
	payload := map[string]any{}
	if len(ev.Raw) > 0 {
		if err := json.Unmarshal(ev.Raw, &payload); err != nil {
			payload = map[string]any{}
		}
	}
	delete(payload, "type")
	if len(payload) == 0 {
		if ev.SubType != "" {
			payload["subtype"] = ev.SubType
		}
		if ev.SessionID != "" {
			payload["session_id"] = ev.SessionID
		}
		if ev.WorkDir != "" {
			payload["cwd"] = ev.WorkDir
		}
	}
	return stream.System{Payload: payload}
}

func assistantEvents(msg *client.MessageContent) []stream.Event {
	if msg == nil {
		return nil
	}
	var out []stream.Event
	for _, block := range msg.Content {
		switch block.Type {
		case client.BlockText:
			remaining, thinking := ExtractThinking(block.Text)
			if thinking == nil {
				out = append(out, stream.Text{Text: block.Text})
				continue
			}
			out = append(out, *thinking)
			if remaining != "" {
				out = append(out, stream.Text{Text: remaining})
			}
		case client.BlockThinking:
			out = append(out, stream.Thinking{Text: block.Thinking, Signature: block.Signature})
		case client.BlockToolUse:
			out = append(out, stream.ToolCall{
				ToolCallID: block.ID,
				ToolName:   MapToolName(block.Name),
				Args:       decodeArgs(block.Input),
			})
		default:
			// redacted_thinking and unknown blocks carry nothing to forward.
		}
	}
	return out
}

func userEvents(msg *client.MessageContent) []stream.Event {
	if msg == nil {
		return nil
	}
	var out []stream.Event
	for _, block := range msg.Content {
		switch block.Type {
		case client.BlockText:
			out = append(out, stream.Text{Text: block.Text})
		case client.BlockToolResult:
			out = append(out, stream.ToolResult{ToolCallID: block.ToolUseID, Result: decodeAny(block.Content)})
		}
	}
	return out
}

func resultFinish(ev client.OutputEvent) stream.Finish {
	f := stream.Finish{
		Reason:       stream.FinishStop,
		TotalCostUSD: ev.TotalCostUSD,
		DurationMs:   ev.DurationMs,
		NumTurns:     ev.NumTurns,
		SessionID:    ev.SessionID,
	}
	if ev.IsError() {
		f.Reason = stream.FinishError
		f.Message = ev.GetErrorMessage()
	}
	if ev.Usage != nil {
		f.Usage = &stream.Usage{
			InputTokens:              ev.Usage.InputTokens,
			OutputTokens:             ev.Usage.OutputTokens,
			CacheReadInputTokens:     ev.Usage.CacheReadInputTokens,
			CacheCreationInputTokens: ev.Usage.CacheCreationInputTokens,
		}
	}
	return f
}

func decodeArgs(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		log.Debug(log.CatOrch, "tool input is not an object", "error", err)
		return map[string]any{}
	}
	return args
}

func decodeAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
