package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rshade/gradebook/internal/config"
	"github.com/rshade/gradebook/internal/engine/batch"
	"github.com/rshade/gradebook/internal/export"
	"github.com/rshade/gradebook/internal/logging"
	"github.com/rshade/gradebook/internal/metrics"
	"github.com/rshade/gradebook/internal/student"
)

// exitCodeFailedItems is returned with --fail-on-error when any report failed.
const exitCodeFailedItems = 2

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "gradebook"

// ReportFlags holds the report command flags.
type ReportFlags struct {
	Roster      string
	Format      string
	Output      string
	Workers     int
	IDs         []string
	MetricsFile string
	FailOnError bool
}

// NewReportCmd creates the report command, which renders one report per student.
func NewReportCmd() *cobra.Command {
	var flags ReportFlags

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate report cards for a roster",
		Long: `Generates one report per student in the roster, concurrently.

Each report is written as <output>/<id>.<ext>; with --format all every format is
written into its own subdirectory (<output>/<format>/<id>.<ext>). Reports that fail
are listed in the summary and do not stop the others.`,
		Example: `  # Every format, default worker count
  gradebook report --roster roster.yaml

  # JSON for two students
  gradebook report --roster roster.yaml --format json --ids s-001,s-002`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Roster, "roster", "", "roster file (YAML or JSON)")
	cmd.Flags().StringVar(&flags.Format, "format", "",
		fmt.Sprintf("report format: %s or all (default from config)", strings.Join(formatNames(), ", ")))
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "output directory (default from config)")
	cmd.Flags().IntVarP(&flags.Workers, "workers", "w", 0, "number of concurrent workers (default from config)")
	cmd.Flags().StringSliceVar(&flags.IDs, "ids", nil, "only these student IDs (comma-separated)")
	cmd.Flags().StringVar(&flags.MetricsFile, "metrics-file", "",
		"write Prometheus metrics in textfile format to this path after the run")
	cmd.Flags().BoolVar(&flags.FailOnError, "fail-on-error", false,
		fmt.Sprintf("exit with code %d when any report fails", exitCodeFailedItems))
	_ = cmd.MarkFlagRequired("roster")

	return cmd
}

func formatNames() []string {
	formats := export.Formats()
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return names
}

// runReport loads the roster and runs the batch. Only setup problems are
// returned as errors unless --fail-on-error is set.
func runReport(cmd *cobra.Command, flags ReportFlags) error {
	ctx := cmd.Context()
	log := logging.FromContext(ctx)

	audit := newAuditContext(ctx, "report.run", map[string]string{
		"roster": flags.Roster,
		"ids":    strings.Join(flags.IDs, ","),
	})

	cfg, err := effectiveConfig(cmd, flags)
	if err != nil {
		audit.logFailure(ctx, err)
		return err
	}
	runCfg, err := cfg.RunConfig()
	if err != nil {
		audit.logFailure(ctx, err)
		return err
	}
	audit.params["format"] = string(runCfg.Format)
	audit.params["workers"] = strconv.Itoa(runCfg.Workers)

	roster, err := student.LoadRoster(flags.Roster)
	if err != nil {
		log.Error().Err(err).Str("roster", flags.Roster).Msg("failed to load roster")
		audit.logFailure(ctx, err)
		return fmt.Errorf("loading roster: %w", err)
	}
	students, err := roster.Select(flags.IDs)
	if err != nil {
		audit.logFailure(ctx, err)
		return fmt.Errorf("selecting students: %w", err)
	}
	log.Debug().Int("students", len(students)).Msg("roster loaded")

	items := make([]batch.WorkItem[student.Student], len(students))
	for i, s := range students {
		items[i] = batch.WorkItem[student.Student]{ID: s.ID, Payload: s}
	}

	collector, err := metrics.NewCollector(metricsNamespace)
	if err != nil {
		audit.logFailure(ctx, err)
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	orch := batch.NewOrchestrator[student.Student](items, runCfg, export.NewFileExporter()).
		WithOutput(cmd.OutOrStdout()).
		WithMetrics(collector)

	summary, err := orch.Run(ctx)
	if err != nil {
		audit.logFailure(ctx, err)
		return fmt.Errorf("report run: %w", err)
	}

	if path := cfg.Report.MetricsFile; path != "" {
		if writeErr := collector.WriteTextfile(path); writeErr != nil {
			log.Warn().Err(writeErr).Str("path", path).Msg("could not write metrics file")
			cmd.PrintErrf("Warning: could not write metrics file: %v\n", writeErr)
		} else {
			cmd.Printf("Metrics written to %s\n", path)
		}
	}

	audit.logSuccess(ctx, summary.Total, summary.Failed)

	if flags.FailOnError && summary.Failed > 0 {
		return &ExitError{
			Code:   exitCodeFailedItems,
			Reason: fmt.Sprintf("%d of %d reports failed", summary.Failed, summary.Total),
		}
	}
	return nil
}

// effectiveConfig applies explicitly set flags over a copy of the global config
// and validates the result.
func effectiveConfig(cmd *cobra.Command, flags ReportFlags) (*config.Config, error) {
	cfg := *config.GetGlobalConfig()

	if cmd.Flags().Changed("format") {
		cfg.Report.Format = flags.Format
	}
	if cmd.Flags().Changed("output") {
		cfg.Report.OutputDir = flags.Output
	}
	if cmd.Flags().Changed("workers") {
		cfg.Report.Workers = flags.Workers
	}
	if cmd.Flags().Changed("metrics-file") {
		cfg.Report.MetricsFile = flags.MetricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
