package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openfoothills/slurmsight/internal/observability"
	"github.com/openfoothills/slurmsight/pkg/accounting"
	"github.com/openfoothills/slurmsight/pkg/jobstore"
)

var loadBatchSize int

var loadCmd = &cobra.Command{
	Use:   "load <hostname> <file.jsonl>",
	Short: "Load job accounting records into the store",
	Long: `Load job accounting records from a JSONL file into the job store.

Each line is one job record. Records are upserted by (hostname, job_id),
so re-loading a newer accounting snapshot updates jobs that were still
running in the previous one. Records that fail validation are skipped
and counted; the run is marked partial when any are skipped.

Examples:
  # Load a month of accounting data for a cluster
  slurmsight load alpine march.jsonl

  # Load with a larger upsert batch
  slurmsight load alpine march.jsonl --batch-size 5000`,
	Args: cobra.ExactArgs(2),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().IntVar(&loadBatchSize, "batch-size", 1000, "Records per upsert transaction")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	hostname := args[0]
	path := args[1]

	f, err := os.Open(path)
	if err != nil {
		observability.CLILogger.Error("Failed to open input file", zap.Error(err))
		return exitError(foundry.ExitFileNotFound, "Cannot open input file", err)
	}
	defer func() { _ = f.Close() }()

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	run, err := jobstore.CreateIngestRun(ctx, db, hostname, path)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to start ingest run", err)
	}

	observability.CLILogger.Info("Loading records",
		zap.String("hostname", hostname),
		zap.String("file", path),
		zap.String("run_id", run.RunID))

	var (
		loaded  int64
		skipped int64
		batch   []accounting.JobRecord
		lineNo  int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := jobstore.BatchUpsertJobs(ctx, db, hostname, run.RunID, batch); err != nil {
			return err
		}
		loaded += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec accounting.JobRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			observability.CLILogger.Warn("Skipping malformed line",
				zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		if err := rec.Validate(); err != nil {
			skipped++
			observability.CLILogger.Warn("Skipping invalid record",
				zap.Int("line", lineNo),
				zap.String("job_id", rec.JobID),
				zap.Error(err))
			continue
		}

		batch = append(batch, rec)
		if len(batch) >= loadBatchSize {
			if err := flush(); err != nil {
				_ = jobstore.FinishIngestRun(ctx, db, run.RunID, loaded, jobstore.RunStatusFailed)
				return exitError(foundry.ExitExternalServiceUnavailable, "Failed to write records", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		_ = jobstore.FinishIngestRun(ctx, db, run.RunID, loaded, jobstore.RunStatusFailed)
		return exitError(foundry.ExitFileReadError, "Failed to read input file", err)
	}
	if err := flush(); err != nil {
		_ = jobstore.FinishIngestRun(ctx, db, run.RunID, loaded, jobstore.RunStatusFailed)
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to write records", err)
	}

	status := jobstore.RunStatusSuccess
	if skipped > 0 {
		status = jobstore.RunStatusPartial
	}
	if err := jobstore.FinishIngestRun(ctx, db, run.RunID, loaded, status); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to finish ingest run", err)
	}

	observability.CLILogger.Info("Load completed",
		zap.Int64("loaded", loaded),
		zap.Int64("skipped", skipped),
		zap.String("status", string(status)))
	fmt.Printf("Loaded %d records for %s (%d skipped)\n", loaded, hostname, skipped)
	return nil
}
