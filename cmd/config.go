package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tejas96/sdlc-agents-sub000/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a commented default config",
	Long: `Write a commented default configuration file.

Without a path the file is written to ~/.config/sdlc-agents/config.yaml.
An existing file is only replaced with --force.`,
	Args: cobra.MaximumNArgs(1),
	// The config being created may not exist or be valid yet.
	PersistentPreRunE: func(*cobra.Command, []string) error { return initLogging() },
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) == 1 {
			path = args[0]
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("locating home directory: %w", err)
			}
			path = filepath.Join(config.UserConfigDir(home), "config.yaml")
		}

		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to replace it)", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after defaults, the config file and environment overrides are applied. Credentials are masked.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		settings := viper.AllSettings()
		maskCredentials(settings)

		data, err := yaml.Marshal(settings)
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if used := viper.ConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", used)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)

	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "replace an existing file")
}

// maskCredentials replaces every non-empty token below "credentials".
func maskCredentials(settings map[string]any) {
	creds, ok := settings["credentials"].(map[string]any)
	if !ok {
		return
	}
	var mask func(m map[string]any)
	mask = func(m map[string]any) {
		for k, v := range m {
			switch v := v.(type) {
			case string:
				if v != "" {
					m[k] = "****"
				}
			case map[string]any:
				mask(v)
			}
		}
	}
	mask(creds)
}
