package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lokutor-ai/companion/pkg/logging"
)

const version = "0.3.0"

var (
	configPath string
	verbose    bool
	logFile    string

	logger *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "companion",
		Short: "Desktop companion with voice, proactive tips and context awareness",
		Long: `companion runs a conversational desktop assistant in the terminal.

It answers typed or spoken messages, can listen in the background, speaks
replies aloud and offers proactive tips based on the foreground window.
Settings live in a JSON (or YAML) file that is reloaded when it changes.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = logging.New(verbose, logFile)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Settings file (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newDevicesCommand())
	rootCmd.AddCommand(newConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("COMPANION_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "settings.json"
	}
	return filepath.Join(dir, "companion", "settings.json")
}
