package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tejas96/sdlc-agents-sub000/internal/orchestration/client"
)

// PermissionMode controls how the runtime asks for tool permission.
type PermissionMode string

const (
	PermissionDefault     PermissionMode = "default"
	PermissionAcceptEdits PermissionMode = "acceptEdits"
	PermissionPlan        PermissionMode = "plan"
	PermissionBypass      PermissionMode = "bypassPermissions"
)

// ParsePermissionMode returns the mode named by s. Anything outside the
// enum, including "", maps to PermissionBypass.
func ParsePermissionMode(s string) PermissionMode {
	switch m := PermissionMode(s); m {
	case PermissionDefault, PermissionAcceptEdits, PermissionPlan, PermissionBypass:
		return m
	default:
		return PermissionBypass
	}
}

// Options configures one upstream call.
type Options struct {
	AllowedTools   []string
	PermissionMode PermissionMode
	WorkDir        string
	// MCPServers maps server name to its launch configuration.
	MCPServers   map[string]any
	SystemPrompt string
	// Continue resumes the most recent session in WorkDir.
	Continue bool
	// ResumeSessionID resumes a specific upstream session.
	ResumeSessionID string
	Model           string
	MaxTurns        int
	Timeout         time.Duration
	// Executable overrides discovery of the runtime binary.
	Executable string
}

// Merge returns o with every unset field taken from defaults. MCP server
// entries are merged by name, with o winning.
func (o Options) Merge(defaults Options) Options {
	out := defaults
	if o.AllowedTools != nil {
		out.AllowedTools = o.AllowedTools
	}
	if o.PermissionMode != "" {
		out.PermissionMode = o.PermissionMode
	}
	if o.WorkDir != "" {
		out.WorkDir = o.WorkDir
	}
	if len(o.MCPServers) > 0 {
		merged := make(map[string]any, len(defaults.MCPServers)+len(o.MCPServers))
		for k, v := range defaults.MCPServers {
			merged[k] = v
		}
		for k, v := range o.MCPServers {
			merged[k] = v
		}
		out.MCPServers = merged
	}
	if o.SystemPrompt != "" {
		out.SystemPrompt = o.SystemPrompt
	}
	if o.Continue {
		out.Continue = true
	}
	if o.ResumeSessionID != "" {
		out.ResumeSessionID = o.ResumeSessionID
	}
	if o.Model != "" {
		out.Model = o.Model
	}
	if o.MaxTurns > 0 {
		out.MaxTurns = o.MaxTurns
	}
	if o.Timeout > 0 {
		out.Timeout = o.Timeout
	}
	if o.Executable != "" {
		out.Executable = o.Executable
	}
	out.PermissionMode = ParsePermissionMode(string(out.PermissionMode))
	return out
}

// clientConfig converts merged options to a spawn configuration.
func (o Options) clientConfig(prompt string) (client.Config, error) {
	cfg := client.Config{
		WorkDir:        o.WorkDir,
		Prompt:         prompt,
		SystemPrompt:   o.SystemPrompt,
		SessionID:      o.ResumeSessionID,
		Continue:       o.Continue,
		PermissionMode: string(o.PermissionMode),
		AllowedTools:   o.AllowedTools,
		Model:          o.Model,
		MaxTurns:       o.MaxTurns,
		Timeout:        o.Timeout,
		ExecutablePath: o.Executable,
	}
	if len(o.MCPServers) > 0 {
		b, err := json.Marshal(map[string]any{"mcpServers": o.MCPServers})
		if err != nil {
			return client.Config{}, fmt.Errorf("encoding mcp config: %w", err)
		}
		cfg.MCPConfig = string(b)
	}
	return cfg, nil
}
