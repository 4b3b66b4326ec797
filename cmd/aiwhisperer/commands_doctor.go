package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/aiwhisperer/internal/doctor"
)

func buildDoctorCmd() *cobra.Command {
	var configPath string
	var backup bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate the workspace, configuration, and dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolvedPath := configPath
			if resolvedPath == "" {
				resolvedPath = defaultConfigPath
			}
			if backup {
				backupPath, err := doctor.BackupConfig(resolvedPath)
				if err != nil {
					return configError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backed up config to %s\n", backupPath)
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return configError(err)
			}

			report := doctor.Validate(cmd.Context(), cfg.ToValidatorConfig(nil))

			out := cmd.OutOrStdout()
			for _, check := range report.Checks {
				fmt.Fprintf(out, "[%s] %s: %s\n", check.Status, check.Name, check.Message)
				if check.Recommendation != "" {
					fmt.Fprintf(out, "    -> %s\n", check.Recommendation)
				}
			}
			fmt.Fprintf(out, "overall: %s\n", report.Overall)

			if report.Overall == doctor.StatusFail {
				return validationError(fmt.Errorf("workspace validation failed"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the configuration file")
	cmd.Flags().BoolVar(&backup, "backup", false, "back up the config file before validating")
	return cmd
}
