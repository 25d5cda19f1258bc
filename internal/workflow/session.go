// Package workflow drives one turn of an SDLC workflow: it prepares the
// session workspace, renders the workflow's prompts, runs the agent and turns
// the files it writes into artifact events.
package workflow

import (
	"errors"

	"github.com/tejas96/sdlc-agents-sub000/internal/git"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestrator"
)

var (
	// ErrUnknownWorkflow is returned for a session naming no registered workflow.
	ErrUnknownWorkflow = errors.New("unknown workflow")
	// ErrMissingInput is returned when a session lacks something its workflow needs.
	ErrMissingInput = errors.New("missing input")
	// ErrPrepareFailed wraps the failure of a fatal prepare phase.
	ErrPrepareFailed = errors.New("prepare failed")
)

// Session is the caller-owned state of one conversation. LLMSessionID is the
// upstream session id and stays empty until the first turn reports one.
type Session struct {
	ID           string                 `json:"id"`
	Workflow     string                 `json:"workflow"`
	WorkspaceDir string                 `json:"workspace_dir"`
	MCPConfigs   map[string]any         `json:"mcp_configs,omitempty"`
	SystemPrompt string                 `json:"system_prompt,omitempty"`
	LLMSessionID string                 `json:"llm_session_id,omitempty"`
	Messages     []orchestrator.Message `json:"messages"`
	Repositories []git.Repository       `json:"repositories,omitempty"`
	Inputs       map[string]any         `json:"inputs,omitempty"`
}

// IsContinuation reports whether the session resumes an upstream session.
func (s *Session) IsContinuation() bool {
	return s.LLMSessionID != ""
}
