package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xor-128/TheSims4Updater/internal/config"
	"github.com/xor-128/TheSims4Updater/internal/utils/logger"
)

// Root command flags
var (
	logLevel  string
	gameDir   string
	mirrorURL string
)

func main() {
	root := createRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

// createRootCommand builds the CLI tree.
func createRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "sims4-updater",
		Short: "incremental updater for The Sims 4",
		Long: `sims4-updater brings an installed copy of The Sims 4 to the latest
version by applying binary delta patches instead of re-downloading the
whole game, and verifies installed files against known-good checksums.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	root.PersistentFlags().BoolP("verbose", "v", false, "Shorthand for --log-level debug")
	root.PersistentFlags().StringVar(&gameDir, "game-dir", "", "Game installation directory (overrides config)")
	root.PersistentFlags().StringVar(&mirrorURL, "mirror", "", "Patch mirror base URL (overrides config)")

	root.AddCommand(createUpdateCommand())
	root.AddCommand(createVerifyCommand())
	root.AddCommand(createResolveCommand())

	attachLoggingHooks(root)
	return root
}

// resolveRequestedLogLevel prefers the explicit --log-level flag and falls
// back to --verbose.
func resolveRequestedLogLevel(cmd *cobra.Command) string {
	if logLevel != "" {
		return logLevel
	}
	if cmd != nil {
		if verbose, err := cmd.Flags().GetBool("verbose"); err == nil && verbose {
			return "debug"
		}
	}
	return ""
}

// attachLoggingHooks initializes the logger before any subcommand runs.
func attachLoggingHooks(root *cobra.Command) {
	for _, cmd := range root.Commands() {
		cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
			level := resolveRequestedLogLevel(cmd)
			if level == "" {
				level = "info"
			}
			return logger.Init(level)
		}
	}
}

// loadConfig loads configuration and applies command-line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if gameDir != "" {
		cfg.GameDir = gameDir
	}
	if mirrorURL != "" {
		cfg.MirrorURL = mirrorURL
	}
	if cfg.GameDir == "" {
		return config.Config{}, fmt.Errorf("game directory not set (use --game-dir or game.dir in updater.yaml)")
	}
	return cfg, nil
}
