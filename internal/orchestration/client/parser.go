package client

import (
	"encoding/json"
	"strings"
)

// EventParser converts one stdout line of a runtime into an OutputEvent.
type EventParser interface {
	// ParseEvent is called for each non-empty stdout line.
	ParseEvent(data []byte) (OutputEvent, error)

	// ExtractSessionRef returns the session identifier carried by an event,
	// or "" when the event carries none.
	ExtractSessionRef(event OutputEvent, rawLine []byte) string
}

// ParsePolymorphicError handles an error field that may be a string, an
// object like {"code":"x","message":"y"}, or a string with an embedded
// API error body such as "413 {\"type\":\"error\",\"error\":{...}}".
//
// Returns nil for null/empty input.
func ParsePolymorphicError(raw json.RawMessage) *ErrorInfo {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var errInfo ErrorInfo
	if err := json.Unmarshal(raw, &errInfo); err == nil && (errInfo.Message != "" || errInfo.Code != "") {
		return &errInfo
	}

	var errStr string
	if err := json.Unmarshal(raw, &errStr); err == nil && errStr != "" {
		return parseErrorString(errStr)
	}

	return nil
}

func parseErrorString(errStr string) *ErrorInfo {
	if idx := strings.Index(errStr, "{"); idx >= 0 {
		var nested struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(errStr[idx:]), &nested); err == nil && nested.Error.Message != "" {
			return &ErrorInfo{
				Message: nested.Error.Message,
				Code:    nested.Error.Type,
			}
		}
	}
	return &ErrorInfo{Message: errStr}
}
