package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openfoothills/slurmsight/internal/observability"
	"github.com/openfoothills/slurmsight/pkg/capacity"
	"github.com/openfoothills/slurmsight/pkg/engine"
	"github.com/openfoothills/slurmsight/pkg/export"
	"github.com/openfoothills/slurmsight/pkg/jobstore"
	"github.com/openfoothills/slurmsight/pkg/report"
)

var exportFlags struct {
	periods     []string
	dest        string
	concurrency int
	rateLimit   float64
	partitions  []string
	accounts    []string
	users       []string
}

var exportCmd = &cobra.Command{
	Use:   "export [hostname...]",
	Short: "Export period reports as JSONL artifacts",
	Long: `Export period-over-period reports for one or more clusters as JSONL
artifacts, one file per cluster and period.

Artifacts go to the configured local directory, or to S3 when an
export bucket is configured. Without hostname arguments every cluster
in the job store is exported.

Examples:
  # March reports for every known cluster
  slurmsight export --period 2025-03

  # Two periods for two specific clusters
  slurmsight export alpine blanca --period 2025-Q1 --period 2025-Q2

  # Override the destination directory
  slurmsight export --period 2025-03 --dest /srv/dashboards/reports`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	f := exportCmd.Flags()
	f.StringSliceVar(&exportFlags.periods, "period", nil, "Period to export, e.g. 2025-03 or 2025-Q1 (repeatable, required)")
	f.StringVar(&exportFlags.dest, "dest", "", "Local destination directory (overrides configuration)")
	f.IntVar(&exportFlags.concurrency, "concurrency", 0, "Export workers (0 = configured default)")
	f.Float64Var(&exportFlags.rateLimit, "rate-limit", 0, "Max reports per second, 0 = unlimited")
	f.StringSliceVar(&exportFlags.partitions, "partition", nil, "Filter by partition (repeatable)")
	f.StringSliceVar(&exportFlags.accounts, "account", nil, "Filter by account (repeatable)")
	f.StringSliceVar(&exportFlags.users, "user", nil, "Filter by user (repeatable)")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if len(exportFlags.periods) == 0 {
		return exitError(foundry.ExitInvalidArgument, "At least one --period is required", nil)
	}
	periods := make([]report.Period, 0, len(exportFlags.periods))
	for _, spec := range exportFlags.periods {
		p, err := report.ParsePeriod(spec)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid period", err)
		}
		periods = append(periods, p)
	}

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	hostnames := args
	if len(hostnames) == 0 {
		hostnames, err = jobstore.Hostnames(ctx, db)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to list clusters", err)
		}
		if len(hostnames) == 0 {
			return exitError(foundry.ExitInvalidArgument, "Job store has no clusters to export", nil)
		}
	}

	sink, err := buildSink(cmd)
	if err != nil {
		return err
	}

	filter := accountingFilter(exportFlags.partitions, exportFlags.accounts, exportFlags.users)
	tasks := make([]export.Task, 0, len(hostnames)*len(periods))
	for _, hostname := range hostnames {
		for _, p := range periods {
			tasks = append(tasks, export.Task{Hostname: hostname, Period: p, Filter: filter})
		}
	}

	// Period reports never request node normalization, so exports run
	// with an empty capacity snapshot.
	eng := engine.New(cfg.Engine.Tuning(), capacity.EmptySnapshot())

	exporterCfg := export.Config{
		Concurrency: exportFlags.concurrency,
		RateLimit:   exportFlags.rateLimit,
	}
	if exporterCfg.Concurrency <= 0 {
		exporterCfg.Concurrency = cfg.Export.Concurrency
	}
	if exporterCfg.RateLimit <= 0 {
		exporterCfg.RateLimit = cfg.Export.RateLimit
	}

	exporter := export.New(eng, jobstore.NewStore(db), sink, exporterCfg)
	observability.CLILogger.Info("Starting export",
		zap.String("run_id", exporter.RunID()),
		zap.Int("tasks", len(tasks)),
		zap.Int("concurrency", exporterCfg.Concurrency))

	summary, err := exporter.Run(ctx, tasks, time.Now().UTC())
	if err != nil {
		return exitError(foundry.ExitSignalInt, "Export interrupted", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Exported %d reports (%d errors) in %s\n",
		summary.Reports, summary.Errors, summary.Duration.Round(time.Millisecond))
	if summary.Errors > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable,
			fmt.Sprintf("%d of %d exports failed", summary.Errors, len(tasks)), nil)
	}
	return nil
}

func buildSink(cmd *cobra.Command) (export.Sink, error) {
	ctx := cmd.Context()

	if exportFlags.dest == "" && cfg.Export.S3.Bucket != "" {
		sink, err := export.NewS3Sink(ctx, export.S3Config{
			Bucket:         cfg.Export.S3.Bucket,
			Prefix:         cfg.Export.S3.Prefix,
			Region:         cfg.Export.S3.Region,
			Endpoint:       cfg.Export.S3.Endpoint,
			Profile:        cfg.Export.S3.Profile,
			ForcePathStyle: cfg.Export.S3.ForcePathStyle,
		})
		if err != nil {
			observability.CLILogger.Error("Failed to configure S3 sink", zap.Error(err))
			return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to configure S3 export", err)
		}
		return sink, nil
	}

	dir := exportFlags.dest
	if dir == "" {
		dir = cfg.Export.Dir
	}
	sink, err := export.NewFileSink(dir)
	if err != nil {
		return nil, exitError(foundry.ExitFileWriteError, "Failed to prepare export directory", err)
	}
	return sink, nil
}
