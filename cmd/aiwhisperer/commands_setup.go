package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/aiwhisperer/internal/workspace"
)

func buildSetupCmd() *cobra.Command {
	var workspacePath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Scaffold the .WHISPER directory tree under a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := workspace.EnsureWorkspaceDirs(workspacePath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, dir := range result.Created {
				fmt.Fprintf(out, "created %s\n", dir)
			}
			for _, dir := range result.Skipped {
				fmt.Fprintf(out, "exists  %s\n", dir)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workspacePath, "workspace", "", "workspace root (default: current directory)")
	return cmd
}
