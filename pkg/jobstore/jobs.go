package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openfoothills/slurmsight/pkg/accounting"
)

// UpsertJob inserts or updates a single job row.
//
// Re-ingesting a job that already exists replaces its mutable fields;
// jobs that were RUNNING at the previous snapshot pick up their final
// state and end time this way.
func UpsertJob(ctx context.Context, db *sql.DB, hostname, runID string, r accounting.JobRecord) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := r.Validate(); err != nil {
		return err
	}

	args, err := upsertArgs(hostname, runID, r)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, upsertJobSQL, args...); err != nil {
		return fmt.Errorf("upsert job %s: %w", r.JobID, err)
	}
	return nil
}

// BatchUpsertJobs inserts or updates multiple jobs in a single
// transaction. Records that fail validation abort the batch; ingestion
// quarantines bad records before reaching the store.
func BatchUpsertJobs(ctx context.Context, db *sql.DB, hostname, runID string, records []accounting.JobRecord) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertJobSQL)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range records {
		if err := records[i].Validate(); err != nil {
			return err
		}
		args, err := upsertArgs(hostname, runID, records[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("exec upsert for %s: %w", records[i].JobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const upsertJobSQL = `INSERT INTO jobs
	 (hostname, job_id, user, account, "partition", qos, state,
	  submit_time, start_time, end_time, cpu_hours, gpu_hours,
	  alloc_cpus, alloc_gpus, alloc_nodes, node_list,
	  last_ingest_run_id, ingested_at)
	 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	 ON CONFLICT(hostname, job_id) DO UPDATE SET
	   user = excluded.user,
	   account = excluded.account,
	   "partition" = excluded."partition",
	   qos = excluded.qos,
	   state = excluded.state,
	   submit_time = excluded.submit_time,
	   start_time = excluded.start_time,
	   end_time = excluded.end_time,
	   cpu_hours = excluded.cpu_hours,
	   gpu_hours = excluded.gpu_hours,
	   alloc_cpus = excluded.alloc_cpus,
	   alloc_gpus = excluded.alloc_gpus,
	   alloc_nodes = excluded.alloc_nodes,
	   node_list = excluded.node_list,
	   last_ingest_run_id = excluded.last_ingest_run_id,
	   ingested_at = excluded.ingested_at`

func upsertArgs(hostname, runID string, r accounting.JobRecord) ([]any, error) {
	var nodeList any
	if len(r.NodeList) > 0 {
		raw, err := json.Marshal(r.NodeList)
		if err != nil {
			return nil, fmt.Errorf("encode node_list for %s: %w", r.JobID, err)
		}
		nodeList = string(raw)
	}

	return []any{
		hostname, r.JobID, r.User, r.Account, r.Partition,
		nullableString(r.QOS), string(r.State),
		r.SubmitTime.UTC().Format(time.RFC3339),
		formatOptionalTime(r.StartTime), formatOptionalTime(r.EndTime),
		r.CPUHours, r.GPUHours,
		r.AllocCPUs, r.AllocGPUs, r.AllocNodes,
		nodeList,
		runID, time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// CountJobs returns the number of job rows stored for a cluster.
func CountJobs(ctx context.Context, db *sql.DB, hostname string) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var count int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE hostname = ?`, hostname).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return count, nil
}

// Hostnames lists the clusters for which job rows exist.
func Hostnames(ctx context.Context, db *sql.DB) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT hostname FROM jobs ORDER BY hostname`)
	if err != nil {
		return nil, fmt.Errorf("list hostnames: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hostname: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hostnames: %w", err)
	}
	return out, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
