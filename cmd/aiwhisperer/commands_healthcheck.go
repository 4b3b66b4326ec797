package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/aiwhisperer/internal/batch"
	"github.com/haasonsaas/aiwhisperer/internal/doctor"
)

func buildHealthcheckCmd() *cobra.Command {
	var configPath string
	var watch string

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Run every health-check script and report a pass/fail score",
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

			executor := batch.NewExecutor(comps.dispatcher)
			runner := doctor.NewHealthCheckRunner(executor, cfg.HealthCheck.ScriptsDir, cfg.HealthCheck.ScriptTimeout)
			out := cmd.OutOrStdout()

			if watch != "" {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				scheduled := doctor.NewScheduledRunner(runner, func(report *doctor.HealthCheckReport) {
					printHealthCheckReport(out, report)
				})
				fmt.Fprintf(out, "watching on schedule %q (ctrl-c to stop)\n", watch)
				return scheduled.Start(ctx, watch)
			}

			report, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			printHealthCheckReport(out, report)

			if report.Failed > 0 || report.Error > 0 {
				return validationError(fmt.Errorf("%d health check(s) did not pass", report.Failed+report.Error))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the configuration file")
	cmd.Flags().StringVar(&watch, "watch", "", "run on a cron schedule instead of once, e.g. \"@every 5m\" or \"0 */6 * * *\"")
	return cmd
}

func printHealthCheckReport(out io.Writer, report *doctor.HealthCheckReport) {
	for _, result := range report.Results {
		fmt.Fprintf(out, "[%s] %s (%s)\n", result.Status, result.Script, result.Duration)
		if result.Detail != "" {
			fmt.Fprintf(out, "    %s\n", result.Detail)
		}
	}
	fmt.Fprintln(out, report.Summary)
}
