package claude

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tejas96/sdlc-agents-sub000/internal/log"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestration/client"
)

// defaultKnownPaths are checked, in order, before PATH lookup.
var defaultKnownPaths = []string{
	"~/.claude/local/{name}",
	"~/.claude/{name}",
}

// Process is a headless Claude Code process.
type Process struct {
	*client.BaseProcess
}

// Spawn starts `claude --print --output-format stream-json` for cfg.
// A non-empty cfg.SessionID resumes that session.
func Spawn(ctx context.Context, cfg client.Config) (*Process, error) {
	execPath := cfg.ExecutablePath
	if execPath == "" {
		var err error
		execPath, err = client.NewExecutableFinder("claude",
			client.WithKnownPaths(defaultKnownPaths...),
		).Find()
		if err != nil {
			return nil, fmt.Errorf("claude: %w", err)
		}
	}

	args := buildArgs(cfg)
	log.Debug(log.CatClaude, "spawning claude",
		"workDir", cfg.WorkDir,
		"resume", cfg.SessionID,
		"continue", cfg.Continue,
		"argc", len(args))

	base, err := client.NewSpawnBuilder(ctx).
		WithExecutable(execPath, args).
		WithWorkDir(cfg.WorkDir).
		WithSessionRef(cfg.SessionID).
		WithTimeout(cfg.Timeout).
		WithParser(NewParser()).
		WithStderrCapture(true).
		WithProviderName("claude").
		WithEnv(cfg.Env).
		Build()
	if err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}
	return &Process{BaseProcess: base}, nil
}

// buildArgs constructs the command line. The prompt always follows "--" so
// a prompt starting with a dash is never taken for a flag.
func buildArgs(cfg client.Config) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
	}

	switch {
	case cfg.SessionID != "":
		args = append(args, "--resume", cfg.SessionID)
	case cfg.Continue:
		args = append(args, "--continue")
	}

	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.PermissionMode != "" {
		args = append(args, "--permission-mode", cfg.PermissionMode)
	}
	if cfg.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", cfg.SystemPrompt)
	}
	if len(cfg.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(cfg.AllowedTools, ","))
	}
	if cfg.MCPConfig != "" {
		args = append(args, "--mcp-config", cfg.MCPConfig)
	}
	if cfg.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(cfg.MaxTurns))
	}

	args = append(args, "--", cfg.Prompt)
	return args
}

var _ client.HeadlessProcess = (*Process)(nil)
