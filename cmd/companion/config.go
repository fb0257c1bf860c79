package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lokutor-ai/companion/pkg/logging"
	"github.com/lokutor-ai/companion/pkg/settings"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the settings file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the settings file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings with credentials masked",
		Long: `Loads the settings file (creating it with defaults if needed), applies
credentials from the environment and .env, and prints the result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = settings.LoadDotEnv()
			store := settings.NewStore(configPath, logging.NewZapLogger(logger))
			s, err := store.Load()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(masked(settings.WithEnvCredentials(s)), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	})

	return cmd
}

func masked(s settings.Settings) settings.Settings {
	s.AI.OpenAI.APIKey = maskKey(s.AI.OpenAI.APIKey)
	s.AI.ElevenLabsAPIKey = maskKey(s.AI.ElevenLabsAPIKey)
	s.AI.LokutorAPIKey = maskKey(s.AI.LokutorAPIKey)
	return s
}

func maskKey(key string) string {
	if settings.IsPlaceholder(key) {
		return key
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "…" + key[len(key)-4:]
}
