package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildPlanCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage TDD plans derived from RFCs",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the configuration file")

	cmd.AddCommand(
		buildPlanPrepareCmd(&configPath),
		buildPlanMoveCmd(&configPath),
		buildPlanDeleteCmd(&configPath),
	)
	return cmd
}

func buildPlanPrepareCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare <rfc-id>",
		Short: "Prepare an RFC's content and hash for plan generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openRFCStore(*configPath)
			if err != nil {
				return err
			}

			prepared, err := store.PreparePlan(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "plan_name: %s\n", prepared.PlanName)
			fmt.Fprintf(out, "rfc_hash:  %s\n", prepared.RFCHash)
			fmt.Fprintln(out, "---")
			fmt.Fprintln(out, prepared.Markdown)
			return nil
		},
	}
}

func buildPlanMoveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "move <plan-name> <to-status>",
		Short: "Move a plan between in_progress and archived",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openRFCStore(*configPath)
			if err != nil {
				return err
			}

			if err := store.MovePlan(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], args[1])
			return nil
		},
	}
}

func buildPlanDeleteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <plan-name>",
		Short: "Permanently delete a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openRFCStore(*configPath)
			if err != nil {
				return err
			}

			if err := store.DeletePlan(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
