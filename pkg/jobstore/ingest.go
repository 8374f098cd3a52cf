package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the status of an ingest run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently in progress.
	RunStatusRunning RunStatus = "running"
	// RunStatusSuccess indicates the run completed successfully.
	RunStatusSuccess RunStatus = "success"
	// RunStatusPartial indicates the run loaded some records but hit errors.
	RunStatusPartial RunStatus = "partial"
	// RunStatusFailed indicates the run failed.
	RunStatusFailed RunStatus = "failed"
)

// IngestRun is one ingestion execution for a cluster: a discrete
// snapshot of the accounting source at a point in time.
type IngestRun struct {
	RunID     string
	Hostname  string
	Source    string
	StartedAt time.Time
	EndedAt   *time.Time
	Records   int64
	Status    RunStatus
}

// CreateIngestRun records the start of an ingestion for a cluster.
// source names where the records came from (e.g. a file path).
func CreateIngestRun(ctx context.Context, db *sql.DB, hostname, source string) (*IngestRun, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	run := &IngestRun{
		RunID:     uuid.NewString(),
		Hostname:  hostname,
		Source:    source,
		StartedAt: time.Now().UTC(),
		Status:    RunStatusRunning,
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO ingest_runs (run_id, hostname, source, started_at, records, status)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		run.RunID, run.Hostname, run.Source,
		run.StartedAt.Format(time.RFC3339), string(run.Status))
	if err != nil {
		return nil, fmt.Errorf("create ingest run: %w", err)
	}

	return run, nil
}

// FinishIngestRun marks a run complete with its final status and record
// count.
func FinishIngestRun(ctx context.Context, db *sql.DB, runID string, records int64, status RunStatus) error {
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := db.ExecContext(ctx,
		`UPDATE ingest_runs SET ended_at = ?, records = ?, status = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339), records, string(status), runID)
	if err != nil {
		return fmt.Errorf("finish ingest run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("finish ingest run: unknown run_id %s", runID)
	}
	return nil
}

// LatestIngestRun returns the most recent run for a cluster, or nil when
// the cluster has never been ingested.
func LatestIngestRun(ctx context.Context, db *sql.DB, hostname string) (*IngestRun, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		run     IngestRun
		started string
		ended   sql.NullString
		status  string
	)

	err := db.QueryRowContext(ctx,
		`SELECT run_id, hostname, source, started_at, ended_at, records, status
		 FROM ingest_runs
		 WHERE hostname = ?
		 ORDER BY started_at DESC
		 LIMIT 1`, hostname).Scan(
		&run.RunID, &run.Hostname, &run.Source, &started, &ended, &run.Records, &status)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest ingest run: %w", err)
	}

	run.Status = RunStatus(status)
	if run.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.EndedAt, err = parseOptionalDBTime(ended); err != nil {
		return nil, fmt.Errorf("parse ended_at: %w", err)
	}

	return &run, nil
}
