package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/aiwhisperer/internal/batch"
)

func buildBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run a batch tool-call script through the Batch Script Runtime",
	}
	cmd.AddCommand(buildBatchRunCmd())
	return cmd
}

func buildBatchRunCmd() *cobra.Command {
	var configPath string
	var dryRun bool
	var stopOnError bool
	var passContext bool
	var validateFirst bool

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Execute a batch script's steps in order",
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

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			script, err := batch.ParseScript(data, args[0])
			if err != nil {
				return validationError(err)
			}

			executor := batch.NewExecutor(comps.dispatcher)
			out := cmd.OutOrStdout()
			mode := batch.Mode{
				StopOnError:   stopOnError,
				DryRun:        dryRun,
				PassContext:   passContext,
				ValidateFirst: validateFirst,
			}

			report, err := executor.Run(cmd.Context(), script, mode, func(index, total int, result batch.StepResult) {
				fmt.Fprintf(out, "[%d/%d] %s: success=%v (%s)\n", index+1, total, result.Action, result.Success, result.Duration)
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "completed=%d failed=%d total=%d success=%v\n",
				report.Completed, report.Failed, report.Total, report.Success)

			if !report.Success {
				return validationError(fmt.Errorf("batch script %s did not complete successfully", args[0]))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the configuration file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "describe steps without executing them")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", true, "stop at the first failing step")
	cmd.Flags().BoolVar(&passContext, "pass-context", true, "thread prior step results into later steps' parameters")
	cmd.Flags().BoolVar(&validateFirst, "validate-first", false, "validate every step's parameters before running any of them")
	return cmd
}
