package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/aiwhisperer/internal/intervene"
	"github.com/haasonsaas/aiwhisperer/internal/observability"
)

// buildServeCmd runs an interactive session that stays alive across
// multiple turns read from stdin, with the Session Monitor (C5) wired to
// the Intervention Engine (C6) so anomalies detected mid-conversation
// trigger a remediation strategy without operator action.
func buildServeCmd(logger *observability.Logger) *cobra.Command {
	var configPath string
	var sessionID string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an interactive session, reading prompts from stdin until EOF",
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

			engine := intervene.New(comps.manager, comps.monitor, comps.recorder, cfg.Intervene.ToInterveneConfig())
			comps.monitor.Subscribe(engine.Handle)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer comps.monitor.Shutdown()

			if sessionID == "" {
				sessionID = "interactive"
			}

			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprintln(out, "aiwhisperer serve: enter a prompt per line, Ctrl-D to exit")

			for scanner.Scan() {
				select {
				case <-ctx.Done():
					return nil
				default:
				}

				prompt := scanner.Text()
				if prompt == "" {
					continue
				}

				msg, err := comps.manager.RunSession(ctx, sessionID, prompt)
				if err != nil {
					logger.Error(ctx, "session turn failed", "session_id", sessionID, "error", err)
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}
				fmt.Fprintln(out, msg.Content)
			}

			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the configuration file")
	cmd.Flags().StringVar(&sessionID, "session", "", "session identifier (default: interactive)")
	return cmd
}
