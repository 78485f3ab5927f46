// Package cli implements the gradebook command line.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rshade/gradebook/internal/config"
	"github.com/rshade/gradebook/internal/logging"
)

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// NewRootCmd creates the root Cobra command for the gradebook CLI. It wires up
// project discovery, logging, tracing and audit logging before any subcommand runs.
func NewRootCmd(ver string) *cobra.Command {
	var (
		logResult  *logging.LogPathResult
		projectDir string
	)

	cmd := &cobra.Command{
		Use:           "gradebook",
		Short:         "Generate student report cards in bulk",
		Long:          "gradebook: render one report per student, concurrently, in several formats",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			wd, _ := os.Getwd()
			resolved := config.ResolveProjectDir(projectDir, wd)
			if resolved != config.GetResolvedProjectDir() {
				config.SetResolvedProjectDir(resolved)
				config.ResetGlobalConfigForTest()
			}

			result := setupLogging(cmd)
			logResult = &result
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return cleanupLogging(cmd, logResult)
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&projectDir, "project-dir", "",
		"project directory holding .gradebook/config.yaml (default: nearest .gradebook above the working directory)")
	cmd.AddCommand(NewReportCmd(), newConfigCmd())

	return cmd
}

const rootCmdExample = `  # Generate every format for every student
  gradebook report --roster roster.yaml

  # CSV only, into ./out, with 4 workers
  gradebook report --roster roster.yaml --format csv --output out --workers 4

  # A subset of students, exporting Prometheus metrics afterwards
  gradebook report --roster roster.yaml --ids s-001,s-007 --metrics-file gradebook.prom

  # Initialize configuration
  gradebook config init`

// newConfigCmd creates the config command group with configuration subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration management commands"}
	cmd.AddCommand(NewConfigInitCmd(), NewConfigShowCmd(), NewConfigValidateCmd())
	return cmd
}
