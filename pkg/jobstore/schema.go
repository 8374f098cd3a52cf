package jobstore

import (
	"context"
	"database/sql"
	"fmt"
)

const SchemaVersion = 1

// Migrate creates (or upgrades) the job store schema in-place.
//
// The schema supports:
// - job rows keyed by (hostname, job_id), upserted on re-ingest
// - ingest run provenance per cluster
func Migrate(ctx context.Context, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS ingest_runs (
			run_id TEXT PRIMARY KEY,
			hostname TEXT NOT NULL,
			source TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			records INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ingest_runs_hostname ON ingest_runs(hostname);`,
		`CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at);`,

		`CREATE TABLE IF NOT EXISTS jobs (
			hostname TEXT NOT NULL,
			job_id TEXT NOT NULL,
			user TEXT NOT NULL,
			account TEXT NOT NULL,
			"partition" TEXT NOT NULL,
			qos TEXT,
			state TEXT NOT NULL,
			submit_time TEXT NOT NULL,
			start_time TEXT,
			end_time TEXT,
			cpu_hours REAL NOT NULL,
			gpu_hours REAL NOT NULL,
			alloc_cpus INTEGER NOT NULL,
			alloc_gpus INTEGER NOT NULL,
			alloc_nodes INTEGER NOT NULL,
			-- JSON array of node names; empty list stored as NULL.
			node_list TEXT,
			last_ingest_run_id TEXT NOT NULL,
			ingested_at TEXT NOT NULL,
			PRIMARY KEY(hostname, job_id),
			FOREIGN KEY(last_ingest_run_id) REFERENCES ingest_runs(run_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_submit_time ON jobs(hostname, submit_time);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_account ON jobs(hostname, account);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_user ON jobs(hostname, user);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
