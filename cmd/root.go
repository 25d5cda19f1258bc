package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tejas96/sdlc-agents-sub000/internal/config"
	"github.com/tejas96/sdlc-agents-sub000/internal/log"
)

// envLogPath overrides the debug log location.
const envLogPath = "SDLC_AGENTS_LOG"

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sdlc-agents",
	Short: "Run SDLC workflows on a coding agent and stream their artifacts",
	Long: `sdlc-agents drives a headless coding agent through software-delivery
workflows (ticketing, rca, testcase, apisuite, codeanalysis). Each turn is
streamed as normalized events; files the agent writes that belong to the
workflow's artifact set are turned into typed artifact events.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/sdlc-agents/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write a debug log (also enabled by "+log.EnvDebug+")")
}

// initApp sets up logging and loads the configuration for every subcommand.
func initApp(_ *cobra.Command, _ []string) error {
	if err := initLogging(); err != nil {
		return err
	}

	home, _ := os.UserHomeDir()
	loaded, used, err := config.Load(viper.GetViper(), afero.NewOsFs(), home, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded
	log.Info(log.CatConfig, "sdlc-agents starting", "version", version, "config", used)
	return nil
}

func initLogging() error {
	if !debugEnabled() {
		return nil
	}
	logPath := os.Getenv(envLogPath)
	if logPath == "" {
		logPath = "debug.log"
	}
	cleanup, err := log.Init(logPath)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	cobra.OnFinalize(cleanup)
	return nil
}

func debugEnabled() bool {
	return debugFlag || log.DebugFromEnv()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
