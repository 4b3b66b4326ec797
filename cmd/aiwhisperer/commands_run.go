package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/aiwhisperer/internal/observability"
)

func buildRunCmd(logger *observability.Logger) *cobra.Command {
	var configPath string
	var sessionID string

	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run one session to completion against the configured LLM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return configError(err)
			}

			comps, err := buildComponents(cfg)
			if err != nil {
				return configError(err)
			}
			defer comps.Close()

			if sessionID == "" {
				sessionID = "cli-session"
			}

			msg, err := comps.manager.RunSession(cmd.Context(), sessionID, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), msg.Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the configuration file")
	cmd.Flags().StringVar(&sessionID, "session", "", "session identifier (default: cli-session)")
	return cmd
}
