package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/aiwhisperer/internal/config"
	"github.com/haasonsaas/aiwhisperer/internal/rfcplan"
)

func openRFCStore(configPath string) (*rfcplan.Store, *config.Config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, configError(err)
	}
	store, err := rfcplan.NewStore(filepath.Join(cfg.Workspace.Path, ".WHISPER"))
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func buildRFCCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rfc",
		Short: "Manage RFC documents through their in_progress/archived lifecycle",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the configuration file")

	cmd.AddCommand(
		buildRFCCreateCmd(&configPath),
		buildRFCShowCmd(&configPath),
		buildRFCTransitionCmd(&configPath),
	)
	return cmd
}

func buildRFCCreateCmd(configPath *string) *cobra.Command {
	var title, shortName, author, summary string

	cmd := &cobra.Command{
		Use:   "create <short-name>",
		Short: "Create a new RFC under rfc/in_progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openRFCStore(*configPath)
			if err != nil {
				return err
			}

			shortName = args[0]
			rfc, err := store.CreateRFC(cmd.Context(), rfcplan.CreateRFCOptions{
				Title:     title,
				ShortName: shortName,
				Author:    author,
				Summary:   summary,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", rfc.Sidecar.RFCID, rfc.Sidecar.Filename)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "RFC title")
	cmd.Flags().StringVar(&author, "author", "", "RFC author")
	cmd.Flags().StringVar(&summary, "summary", "", "RFC summary section")
	return cmd
}

func buildRFCShowCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <rfc-id>",
		Short: "Print an RFC's markdown body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openRFCStore(*configPath)
			if err != nil {
				return err
			}

			rfc, err := store.LoadRFC(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), rfc.Markdown)
			return nil
		},
	}
	return cmd
}

func buildRFCTransitionCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition <rfc-id> <to-status>",
		Short: "Move an RFC between in_progress and archived",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openRFCStore(*configPath)
			if err != nil {
				return err
			}

			rfc, err := store.TransitionRFC(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", rfc.Sidecar.RFCID, rfc.Sidecar.Status)
			return nil
		},
	}
	return cmd
}
