// Package main provides the CLI entry point for AIWhisperer: an
// interactive multi-agent LLM orchestration server.
//
// # Basic usage
//
//	aiwhisperer run "summarize the open RFCs" --config aiwhisperer.yaml
//	aiwhisperer doctor
//	aiwhisperer healthcheck
//	aiwhisperer rfc create my-feature --title "My Feature"
//	aiwhisperer batch run scripts/smoke.yaml
//
// # Exit codes
//
// 0 success; 1 validation failure; 2 configuration error; 3 uncaught
// runtime error (spec.md §6).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/aiwhisperer/internal/observability"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	exitSuccess           = 0
	exitValidationFailure = 1
	exitConfigError       = 2
	exitRuntimeError      = 3
)

// cliError pins a command failure to one of spec.md §6's exit codes; a
// bare error returned from a command's RunE is treated as exitRuntimeError.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func configError(err error) error     { return &cliError{code: exitConfigError, err: err} }
func validationError(err error) error { return &cliError{code: exitValidationFailure, err: err} }

func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitRuntimeError
}

func main() {
	logger := observability.NewLogger(observability.LogConfig{})

	rootCmd := buildRootCmd(logger)
	if err := rootCmd.Execute(); err != nil {
		logger.Error(context.Background(), "command failed", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() so tests can exercise command wiring directly.
func buildRootCmd(logger *observability.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aiwhisperer",
		Short: "AIWhisperer - interactive multi-agent LLM orchestration server",
		Long: `AIWhisperer drives specialised agents against an LLM backend, dispatches
their tool calls through a uniform runtime, supervises live sessions for
stalls and anomalies, and tracks RFC/Plan documents through their lifecycle.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(logger),
		buildServeCmd(logger),
		buildDoctorCmd(),
		buildHealthcheckCmd(),
		buildSetupCmd(),
		buildBatchCmd(),
		buildRFCCmd(),
		buildPlanCmd(),
	)

	return rootCmd
}
