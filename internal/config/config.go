// Package config provides configuration types, defaults and loading for
// sdlc-agents.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tejas96/sdlc-agents-sub000/internal/git"
	"github.com/tejas96/sdlc-agents-sub000/internal/log"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestration/client"
	"github.com/tejas96/sdlc-agents-sub000/internal/tracing"
)

// Config holds all application configuration.
type Config struct {
	Agent       AgentConfig     `mapstructure:"agent"`
	Workspace   WorkspaceConfig `mapstructure:"workspace"`
	Credentials git.Credentials `mapstructure:"credentials"`
	Storage     StorageConfig   `mapstructure:"storage"`
	Artifacts   ArtifactsConfig `mapstructure:"artifacts"`
	Server      ServerConfig    `mapstructure:"server"`
	Tracing     tracing.Config  `mapstructure:"tracing"`
}

// AgentConfig configures the upstream agent runtime.
type AgentConfig struct {
	Client         string        `mapstructure:"client"`     // "claude" (default) or "mock"
	Executable     string        `mapstructure:"executable"` // empty searches PATH and known locations
	Model          string        `mapstructure:"model"`
	PermissionMode string        `mapstructure:"permission_mode"`
	AllowedTools   []string      `mapstructure:"allowed_tools"`
	MaxTurns       int           `mapstructure:"max_turns"`
	Timeout        time.Duration `mapstructure:"timeout"` // zero means no limit
	TemplatesDir   string        `mapstructure:"templates_dir"`
}

// WorkspaceConfig locates per-session workspaces.
type WorkspaceConfig struct {
	Root string `mapstructure:"root"`
}

// StorageConfig configures the sqlite session store.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ArtifactsConfig selects where artifact content is stored.
type ArtifactsConfig struct {
	Backend string   `mapstructure:"backend"` // "fs" (default) or "s3"
	Dir     string   `mapstructure:"dir"`
	S3      S3Config `mapstructure:"s3"`
}

// S3Config configures the S3 artifact backend.
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	Prefix       string `mapstructure:"prefix"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DataDir returns ~/.sdlc-agents, the default home of workspaces, the
// database and artifact blobs. Without a home directory it falls back to the
// system temp dir.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "sdlc-agents")
	}
	return filepath.Join(home, ".sdlc-agents")
}

// DefaultTracesFilePath returns the default JSONL trace file.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sdlc-agents", "traces", "traces.jsonl")
}

// DefaultAllowedTools is the tool allow-list given to the agent.
func DefaultAllowedTools() []string {
	return []string{"Read", "Write", "Edit", "MultiEdit", "Glob", "Grep", "LS", "Bash", "TodoWrite"}
}

// Defaults returns the default configuration.
func Defaults() Config {
	data := DataDir()
	traces := tracing.DefaultConfig()
	traces.FilePath = DefaultTracesFilePath()

	return Config{
		Agent: AgentConfig{
			Client:         string(client.ClientClaude),
			PermissionMode: "bypassPermissions",
			AllowedTools:   DefaultAllowedTools(),
		},
		Workspace: WorkspaceConfig{Root: filepath.Join(data, "workspaces")},
		Storage:   StorageConfig{Path: filepath.Join(data, "sdlc-agents.db")},
		Artifacts: ArtifactsConfig{
			Backend: "fs",
			Dir:     filepath.Join(data, "artifacts"),
		},
		Server:  ServerConfig{Addr: "127.0.0.1:8080"},
		Tracing: traces,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if err := ValidateAgent(c.Agent); err != nil {
		return err
	}
	if c.Workspace.Root != "" && !filepath.IsAbs(c.Workspace.Root) {
		return fmt.Errorf("workspace.root must be an absolute path, got %q", c.Workspace.Root)
	}
	if err := ValidateArtifacts(c.Artifacts); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// ValidateAgent validates the agent section.
func ValidateAgent(a AgentConfig) error {
	switch client.ClientType(a.Client) {
	case "", client.ClientClaude, client.ClientMock:
	default:
		return fmt.Errorf("agent.client must be %q or %q, got %q", client.ClientClaude, client.ClientMock, a.Client)
	}
	if a.MaxTurns < 0 {
		return fmt.Errorf("agent.max_turns must not be negative, got %d", a.MaxTurns)
	}
	if a.Timeout < 0 {
		return fmt.Errorf("agent.timeout must not be negative, got %s", a.Timeout)
	}
	return nil
}

// ValidateArtifacts validates the artifacts section.
func ValidateArtifacts(a ArtifactsConfig) error {
	switch a.Backend {
	case "", "fs":
		if a.Dir == "" {
			return fmt.Errorf("artifacts.dir is required for the fs backend")
		}
	case "s3":
		if a.S3.Bucket == "" {
			return fmt.Errorf("artifacts.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("artifacts.backend must be \"fs\" or \"s3\", got %q", a.Backend)
	}
	return nil
}

// ValidateTracing validates the tracing section.
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}

	if t.Exporter != "" {
		switch t.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
		}
	}

	if t.Enabled {
		if t.Exporter == "file" && t.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if t.Exporter == "otlp" && t.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// DefaultConfigTemplate returns the commented config written by
// WriteDefaultConfig.
func DefaultConfigTemplate() string {
	return `# sdlc-agents configuration

agent:
  client: claude                 # "claude" or "mock"
  # executable: /usr/local/bin/claude
  # model: sonnet
  permission_mode: bypassPermissions   # default | acceptEdits | plan | bypassPermissions
  # allowed_tools: [Read, Write, Edit, Glob, Grep, Bash]
  # max_turns: 40
  # timeout: 30m
  # templates_dir: ~/.config/sdlc-agents/templates

# workspace:
#   root: /var/lib/sdlc-agents/workspaces

# Access tokens used when cloning repositories.
# credentials:
#   github: ghp_xxx
#   gitlab: glpat-xxx
#   bitbucket: xxx
#   hosts:
#     git.example.com: xxx

# storage:
#   path: /var/lib/sdlc-agents/sdlc-agents.db

artifacts:
  backend: fs                    # "fs" or "s3"
  # dir: /var/lib/sdlc-agents/artifacts
  # s3:
  #   bucket: my-artifacts
  #   region: us-east-1
  #   prefix: sdlc/
  #   endpoint: http://localhost:9000
  #   use_path_style: true

server:
  addr: 127.0.0.1:8080

tracing:
  enabled: false
  exporter: file                 # none | file | stdout | otlp
  # file_path: ~/.config/sdlc-agents/traces/traces.jsonl
  # otlp_endpoint: localhost:4317
  sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at configPath with the commented
// defaults, creating the parent directory if needed.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
