package client

import "time"

// Config holds provider-agnostic configuration for spawning a process.
type Config struct {
	// WorkDir is the working directory for the process.
	WorkDir string

	// Prompt is the linear prompt sent to the agent.
	Prompt string

	// SystemPrompt is appended to the agent's system instructions.
	SystemPrompt string

	// MCPConfig is the MCP server configuration as a JSON document.
	MCPConfig string

	// SessionID resumes an existing upstream session when set.
	SessionID string

	// Continue resumes the most recent session in WorkDir.
	Continue bool

	// PermissionMode is passed through verbatim. Callers validate it.
	PermissionMode string

	// AllowedTools lists native tool names the agent may use without asking.
	AllowedTools []string

	Model    string
	MaxTurns int

	// ExecutablePath overrides executable discovery.
	ExecutablePath string

	// Timeout bounds the process lifetime. Zero means no timeout.
	Timeout time.Duration

	// Env holds extra KEY=VALUE pairs appended to the process environment.
	Env []string
}
