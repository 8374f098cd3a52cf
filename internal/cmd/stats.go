package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openfoothills/slurmsight/internal/observability"
	"github.com/openfoothills/slurmsight/pkg/jobstore"
)

var statsFlags struct {
	jsonOutput bool
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job store statistics",
	Long: `Show per-cluster statistics for the job store: record counts and
the most recent ingest run for each cluster.

Examples:
  slurmsight stats
  slurmsight stats --json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsFlags.jsonOutput, "json", false, "Output as JSON")
}

type clusterStats struct {
	Hostname   string              `json:"hostname"`
	Jobs       int64               `json:"jobs"`
	LastIngest *jobstore.IngestRun `json:"last_ingest,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	hostnames, err := jobstore.Hostnames(ctx, db)
	if err != nil {
		observability.CLILogger.Error("Failed to list clusters", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to list clusters", err)
	}

	stats := make([]clusterStats, 0, len(hostnames))
	for _, hostname := range hostnames {
		count, err := jobstore.CountJobs(ctx, db, hostname)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to count jobs", err)
		}
		run, err := jobstore.LatestIngestRun(ctx, db, hostname)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to read ingest runs", err)
		}
		stats = append(stats, clusterStats{Hostname: hostname, Jobs: count, LastIngest: run})
	}

	if statsFlags.jsonOutput {
		return printJSON(stats)
	}
	return printStatsTable(stats)
}

func printStatsTable(stats []clusterStats) error {
	if len(stats) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "Job store is empty. Run 'slurmsight load' to ingest records.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CLUSTER\tJOBS\tLAST INGEST\tSTATUS")
	for _, s := range stats {
		lastIngest := "-"
		status := "-"
		if s.LastIngest != nil {
			lastIngest = s.LastIngest.StartedAt.Format("2006-01-02 15:04:05")
			status = string(s.LastIngest.Status)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.Hostname, s.Jobs, lastIngest, status)
	}
	if err := w.Flush(); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}
