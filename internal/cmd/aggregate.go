package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openfoothills/slurmsight/internal/observability"
	"github.com/openfoothills/slurmsight/pkg/accounting"
	"github.com/openfoothills/slurmsight/pkg/engine"
	"github.com/openfoothills/slurmsight/pkg/export"
	"github.com/openfoothills/slurmsight/pkg/jobstore"
	"github.com/openfoothills/slurmsight/pkg/series"
)

var aggregateFlags struct {
	start       string
	end         string
	groupBy     string
	metric      string
	granularity string
	topN        int
	normalize   bool
	hideZero    bool
	sortSlices  bool
	histBins    int
	histMode    string
	output      string
	partitions  []string
	accounts    []string
	users       []string
	qos         []string
	states      []string
	jsonOutput  bool
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <hostname>",
	Short: "Aggregate job records into chart-ready analytics",
	Long: `Aggregate stored job records for a cluster over a date range.

Produces a timeline bucketed by the selected (or auto-chosen)
granularity, distribution statistics for duration and waiting time, and
optionally grouped views, stacked percentages, and node utilization.

Examples:
  # Daily CPU-hour timeline for March
  slurmsight aggregate alpine --start 2025-03-01 --end 2025-03-31 --metric cpu_hours

  # Top 5 accounts, weekly, with stacked percentages
  slurmsight aggregate alpine --start 2025-01-01 --end 2025-06-30 \
    --group-by account --top-n 5

  # Node utilization normalized against capacity
  slurmsight aggregate alpine --start 2025-03-01 --end 2025-03-31 --normalize

  # Filter to one partition and only failed jobs
  slurmsight aggregate alpine --start 2025-03-01 --end 2025-03-31 \
    --partition gpu --state FAILED`,
	Args: cobra.ExactArgs(1),
	RunE: runAggregate,
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
	f := aggregateCmd.Flags()
	f.StringVar(&aggregateFlags.start, "start", "", "Range start date (YYYY-MM-DD, inclusive)")
	f.StringVar(&aggregateFlags.end, "end", "", "Range end date (YYYY-MM-DD, inclusive)")
	f.StringVar(&aggregateFlags.groupBy, "group-by", "", "Group series by dimension (account, partition, state, qos, user)")
	f.StringVar(&aggregateFlags.metric, "metric", "", "Metric to chart (jobs, cpu_hours, gpu_hours; default jobs)")
	f.StringVar(&aggregateFlags.granularity, "granularity", "auto", "Bucket size (auto, day, week, month, quarter, year)")
	f.IntVar(&aggregateFlags.topN, "top-n", 0, "Groups to retain before folding into Other (0 = configured default)")
	f.BoolVar(&aggregateFlags.normalize, "normalize", false, "Include node utilization normalized against capacity")
	f.BoolVar(&aggregateFlags.hideZero, "hide-zero", false, "Drop all-zero sub-series from grouped timelines")
	f.BoolVar(&aggregateFlags.sortSlices, "sort", false, "Sort breakdown slices by value (Other stays last)")
	f.IntVar(&aggregateFlags.histBins, "histogram-bins", 0, "Histogram bin count (0 = configured default)")
	f.StringVar(&aggregateFlags.histMode, "histogram-mode", "fixed", "Histogram binning (fixed, quantile)")
	f.StringVar(&aggregateFlags.output, "output", "", "Also write the result as a JSONL artifact to this file")
	f.StringSliceVar(&aggregateFlags.partitions, "partition", nil, "Filter by partition (repeatable)")
	f.StringSliceVar(&aggregateFlags.accounts, "account", nil, "Filter by account (repeatable)")
	f.StringSliceVar(&aggregateFlags.users, "user", nil, "Filter by user (repeatable)")
	f.StringSliceVar(&aggregateFlags.qos, "qos", nil, "Filter by QOS (repeatable)")
	f.StringSliceVar(&aggregateFlags.states, "state", nil, "Filter by job state (repeatable)")
	f.BoolVar(&aggregateFlags.jsonOutput, "json", false, "Output as JSON")
}

func parseDateRange(start, end string) (time.Time, time.Time, error) {
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("--start and --end are required")
	}
	s, err := time.ParseInLocation("2006-01-02", start, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
	}
	e, err := time.ParseInLocation("2006-01-02", end, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
	}
	return s, e, nil
}

func buildFilter() accounting.Filter {
	f := accounting.Filter{
		Partitions: aggregateFlags.partitions,
		Accounts:   aggregateFlags.accounts,
		Users:      aggregateFlags.users,
		QOS:        aggregateFlags.qos,
	}
	for _, s := range aggregateFlags.states {
		f.States = append(f.States, accounting.JobState(s))
	}
	return f
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	hostname := args[0]

	start, end, err := parseDateRange(aggregateFlags.start, aggregateFlags.end)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid date range", err)
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

	filter := buildFilter()
	records, err := jobstore.NewStore(db).Fetch(ctx, hostname, start, end, filter)
	if err != nil {
		observability.CLILogger.Error("Failed to fetch records", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to fetch records", err)
	}

	res, err := eng.Aggregate(records, engine.Request{
		Hostname:      hostname,
		Start:         start,
		End:           end,
		Filter:        filter,
		GroupBy:       aggregateFlags.groupBy,
		Granularity:   aggregateFlags.granularity,
		Metric:        aggregateFlags.metric,
		TopN:          aggregateFlags.topN,
		Normalize:     aggregateFlags.normalize,
		HideZero:      aggregateFlags.hideZero,
		SortSlices:    aggregateFlags.sortSlices,
		HistogramBins: aggregateFlags.histBins,
		HistogramMode: series.BinMode(aggregateFlags.histMode),
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Aggregation failed", err)
	}

	if aggregateFlags.output != "" {
		if err := writeResultArtifact(ctx, aggregateFlags.output, res); err != nil {
			return err
		}
	}

	if aggregateFlags.jsonOutput {
		return printJSON(res)
	}
	return printAggregateTable(res)
}

// writeResultArtifact ships one aggregation result as a JSONL envelope,
// the same record shape the bulk exporter produces.
func writeResultArtifact(ctx context.Context, path string, res *engine.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create output file", err)
	}
	w := export.NewJSONLWriter(f, uuid.NewString())
	if err := w.WriteResult(ctx, res); err != nil {
		_ = f.Close()
		return exitError(foundry.ExitFileWriteError, "Failed to write result artifact", err)
	}
	if err := f.Close(); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write result artifact", err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to encode output", err)
	}
	return nil
}

func printAggregateTable(res *engine.Result) error {
	_, _ = fmt.Fprintf(os.Stdout, "Cluster: %s\n", res.Hostname)
	_, _ = fmt.Fprintf(os.Stdout, "Range: %s to %s (%s buckets)\n",
		res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"), res.Granularity)
	if res.NoData {
		_, _ = fmt.Fprintln(os.Stdout, "No matching records.")
		return nil
	}

	_, _ = fmt.Fprintln(os.Stdout)
	_, _ = fmt.Fprintln(os.Stdout, "Totals:")
	_, _ = fmt.Fprintf(os.Stdout, "  Jobs:         %d\n", res.Totals.Jobs)
	_, _ = fmt.Fprintf(os.Stdout, "  CPU hours:    %.1f\n", res.Totals.CPUHours)
	_, _ = fmt.Fprintf(os.Stdout, "  GPU hours:    %.1f\n", res.Totals.GPUHours)
	_, _ = fmt.Fprintf(os.Stdout, "  Active users: %d\n", res.Totals.ActiveUsers)
	_, _ = fmt.Fprintln(os.Stdout)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PERIOD\tSERIES\tVALUE")
	for _, s := range res.Timeline.Series {
		label := s.Label
		if label == "" {
			label = "total"
		}
		for _, p := range s.Points {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f\n", p.Period, label, p.Value)
		}
	}
	if err := w.Flush(); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}

	if res.Breakdown != nil {
		_, _ = fmt.Fprintln(os.Stdout)
		_, _ = fmt.Fprintf(os.Stdout, "Breakdown by %s (%s):\n", res.Breakdown.Dimension, res.Breakdown.Unit)
		bw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(bw, "LABEL\tVALUE\tJOBS")
		for _, s := range res.Breakdown.Slices {
			_, _ = fmt.Fprintf(bw, "%s\t%.1f\t%d\n", s.Label, s.Value, s.Jobs)
		}
		if err := bw.Flush(); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}

	if res.DurationStats.HasData() {
		_, _ = fmt.Fprintln(os.Stdout)
		_, _ = fmt.Fprintf(os.Stdout, "Duration (hours): median %.2f, p90 %.2f, max %.2f over %d jobs\n",
			res.DurationStats.Median, res.DurationStats.P90, res.DurationStats.Max, res.DurationStats.Count)
	}
	if res.WaitingStats.HasData() {
		_, _ = fmt.Fprintf(os.Stdout, "Waiting (hours):  median %.2f, p90 %.2f, max %.2f over %d jobs\n",
			res.WaitingStats.Median, res.WaitingStats.P90, res.WaitingStats.Max, res.WaitingStats.Count)
	}

	if len(res.Nodes) > 0 {
		_, _ = fmt.Fprintln(os.Stdout)
		_, _ = fmt.Fprintln(os.Stdout, "Node utilization:")
		nw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(nw, "NODE\tJOBS\tCPU HOURS\tCPU %\tGPU %")
		for _, n := range res.Nodes {
			if n.Normalized {
				_, _ = fmt.Fprintf(nw, "%s\t%d\t%.1f\t%.1f\t%.1f\n", n.Node, n.Jobs, n.CPUHours, n.CPUPct, n.GPUPct)
			} else {
				_, _ = fmt.Fprintf(nw, "%s\t%d\t%.1f\t-\t-\n", n.Node, n.Jobs, n.CPUHours)
			}
		}
		if err := nw.Flush(); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}

	return nil
}
