package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/tejas96/sdlc-agents-sub000/internal/log"
)

// EnvPrefix prefixes environment overrides, e.g. SDLC_AGENTS_AGENT_MODEL.
const EnvPrefix = "SDLC_AGENTS"

// LocalConfigFile is checked before the user config.
const LocalConfigFile = ".sdlc-agents/config.yaml"

// UserConfigDir returns ~/.config/sdlc-agents.
func UserConfigDir(home string) string {
	return filepath.Join(home, ".config", "sdlc-agents")
}

// SetDefaults registers every default with v so that environment overrides
// apply to keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("agent.client", d.Agent.Client)
	v.SetDefault("agent.executable", d.Agent.Executable)
	v.SetDefault("agent.model", d.Agent.Model)
	v.SetDefault("agent.permission_mode", d.Agent.PermissionMode)
	v.SetDefault("agent.allowed_tools", d.Agent.AllowedTools)
	v.SetDefault("agent.max_turns", d.Agent.MaxTurns)
	v.SetDefault("agent.timeout", d.Agent.Timeout)
	v.SetDefault("agent.templates_dir", d.Agent.TemplatesDir)
	v.SetDefault("workspace.root", d.Workspace.Root)
	v.SetDefault("credentials.github", "")
	v.SetDefault("credentials.gitlab", "")
	v.SetDefault("credentials.bitbucket", "")
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("artifacts.backend", d.Artifacts.Backend)
	v.SetDefault("artifacts.dir", d.Artifacts.Dir)
	v.SetDefault("artifacts.s3.bucket", "")
	v.SetDefault("artifacts.s3.region", "")
	v.SetDefault("artifacts.s3.endpoint", "")
	v.SetDefault("artifacts.s3.prefix", "")
	v.SetDefault("artifacts.s3.use_path_style", false)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// Load reads configuration into a Config.
//
// Lookup order when cfgFile is empty:
//  1. .sdlc-agents/config.yaml (current directory)
//  2. <home>/.config/sdlc-agents/config.yaml
//
// A missing config file is not an error. Environment variables prefixed with
// SDLC_AGENTS override file values. It returns the config file used, if any.
func Load(v *viper.Viper, fs afero.Fs, home, cfgFile string) (Config, string, error) {
	v.SetFs(fs)
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	case fileExists(fs, LocalConfigFile):
		v.SetConfigFile(LocalConfigFile)
	default:
		v.AddConfigPath(UserConfigDir(home))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, "", fmt.Errorf("reading config: %w", err)
		}
		log.Debug(log.CatConfig, "no config file, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", fmt.Errorf("invalid config: %w", err)
	}
	log.Debug(log.CatConfig, "config loaded", "file", v.ConfigFileUsed(), "client", cfg.Agent.Client)
	return cfg, v.ConfigFileUsed(), nil
}

func fileExists(fs afero.Fs, path string) bool {
	ok, err := afero.Exists(fs, path)
	return err == nil && ok
}
