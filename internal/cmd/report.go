package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openfoothills/slurmsight/internal/observability"
	"github.com/openfoothills/slurmsight/pkg/engine"
	"github.com/openfoothills/slurmsight/pkg/jobstore"
	"github.com/openfoothills/slurmsight/pkg/report"
)

var reportFlags struct {
	partitions []string
	accounts   []string
	users      []string
	jsonOutput bool
}

var reportCmd = &cobra.Command{
	Use:   "report <hostname> <period>",
	Short: "Build a period-over-period usage report",
	Long: `Build a usage report for one completed calendar period and compare
it against the preceding period of the same type.

Periods are specified as 2025-03 (month), 2025-Q1 (quarter), or
2025 (year). Incomplete periods are rejected: a report for the current
month cannot be generated until the month has fully elapsed.

Examples:
  # March 2025 versus February 2025
  slurmsight report alpine 2025-03

  # First quarter, restricted to one account
  slurmsight report alpine 2025-Q1 --account physics

  # Full-year report as JSON
  slurmsight report alpine 2025 --json`,
	Args: cobra.ExactArgs(2),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	f := reportCmd.Flags()
	f.StringSliceVar(&reportFlags.partitions, "partition", nil, "Filter by partition (repeatable)")
	f.StringSliceVar(&reportFlags.accounts, "account", nil, "Filter by account (repeatable)")
	f.StringSliceVar(&reportFlags.users, "user", nil, "Filter by user (repeatable)")
	f.BoolVar(&reportFlags.jsonOutput, "json", false, "Output as JSON")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	hostname := args[0]

	period, err := report.ParsePeriod(args[1])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid period", err)
	}

	eng, err := newEngine(hostname)
	if err != nil {
		return err
	}

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	filter := accountingFilter(reportFlags.partitions, reportFlags.accounts, reportFlags.users)
	rep, err := eng.BuildPeriodReport(ctx, jobstore.NewStore(db), hostname, period, filter, time.Now().UTC())
	if err != nil {
		if errors.Is(err, report.ErrIncompletePeriod) {
			return exitError(foundry.ExitInvalidArgument, "Period has not completed yet", err)
		}
		observability.CLILogger.Error("Failed to build report", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to build report", err)
	}

	if reportFlags.jsonOutput {
		return printJSON(rep)
	}
	return printReportTable(rep)
}

func printReportTable(rep *engine.PeriodReport) error {
	c := rep.Comparison
	_, _ = fmt.Fprintf(os.Stdout, "Cluster: %s\n", rep.Hostname)
	_, _ = fmt.Fprintf(os.Stdout, "Period: %s (vs %s)\n\n", c.Period, c.PreviousPeriod)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "METRIC\tCURRENT\tPREVIOUS\tCHANGE")
	_, _ = fmt.Fprintf(w, "Jobs\t%.0f\t%.0f\t%s\n", c.Jobs.Current, c.Jobs.Previous, formatDelta(c.Jobs))
	_, _ = fmt.Fprintf(w, "CPU hours\t%.1f\t%.1f\t%s\n", c.CPUHours.Current, c.CPUHours.Previous, formatDelta(c.CPUHours))
	_, _ = fmt.Fprintf(w, "GPU hours\t%.1f\t%.1f\t%s\n", c.GPUHours.Current, c.GPUHours.Previous, formatDelta(c.GPUHours))
	_, _ = fmt.Fprintf(w, "Active users\t%.0f\t%.0f\t%s\n", c.ActiveUsers.Current, c.ActiveUsers.Previous, formatDelta(c.ActiveUsers))
	if err := w.Flush(); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

// formatDelta renders a period-over-period change for table output.
// "new" marks activity with no previous-period baseline.
func formatDelta(d report.Delta) string {
	if d.New {
		return "new"
	}
	if d.Current == 0 && d.Previous == 0 {
		return "-"
	}
	return fmt.Sprintf("%+.1f%%", d.PctChange)
}
