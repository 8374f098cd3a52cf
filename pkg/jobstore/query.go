package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/openfoothills/slurmsight/pkg/accounting"
)

// QueryParams specifies filters for reading job records back out.
type QueryParams struct {
	// Hostname limits the query to one cluster.
	// Required.
	Hostname string

	// SubmittedAfter / SubmittedBefore bound the submit time (inclusive).
	// Zero times mean no bound.
	SubmittedAfter  time.Time
	SubmittedBefore time.Time

	// Filter narrows by category; each non-empty list is pushed down as
	// an IN clause.
	Filter accounting.Filter

	// JobPattern is a doublestar glob matched against job_id, applied
	// client-side after the SQL filters. Useful for array jobs
	// ("1234_*"). Optional.
	JobPattern string

	// Limit caps the number of results returned.
	// Optional. Zero means no limit.
	Limit int
}

// QueryJobs reads job records matching the filters.
//
// Results are ordered by job_id so downstream tie-breaking (top-N
// grouping) is reproducible across runs.
func QueryJobs(ctx context.Context, db *sql.DB, params QueryParams) ([]accounting.JobRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if params.Hostname == "" {
		return nil, fmt.Errorf("hostname is required")
	}
	if params.JobPattern != "" && !doublestar.ValidatePattern(params.JobPattern) {
		return nil, fmt.Errorf("invalid job pattern: %s", params.JobPattern)
	}

	query := `SELECT job_id, user, account, "partition", qos, state,
		submit_time, start_time, end_time, cpu_hours, gpu_hours,
		alloc_cpus, alloc_gpus, alloc_nodes, node_list
		FROM jobs
		WHERE hostname = ?`
	args := []any{params.Hostname}

	if !params.SubmittedAfter.IsZero() {
		query += ` AND submit_time >= ?`
		args = append(args, params.SubmittedAfter.UTC().Format(time.RFC3339))
	}
	if !params.SubmittedBefore.IsZero() {
		query += ` AND submit_time <= ?`
		args = append(args, params.SubmittedBefore.UTC().Format(time.RFC3339))
	}

	query, args = appendInClause(query, args, `"partition"`, params.Filter.Partitions)
	query, args = appendInClause(query, args, "account", params.Filter.Accounts)
	query, args = appendInClause(query, args, "user", params.Filter.Users)
	query, args = appendInClause(query, args, "qos", params.Filter.QOS)
	query, args = appendInClause(query, args, "state", stateStrings(params.Filter.States))

	query += ` ORDER BY job_id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []accounting.JobRecord
	for rows.Next() {
		r, err := scanJob(rows)
		if err != nil {
			return nil, err
		}

		if params.JobPattern != "" {
			matched, err := doublestar.Match(params.JobPattern, r.JobID)
			if err != nil {
				return nil, fmt.Errorf("match job pattern: %w", err)
			}
			if !matched {
				continue
			}
		}

		results = append(results, r)

		if params.Limit > 0 && len(results) >= params.Limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	return results, nil
}

func scanJob(rows *sql.Rows) (accounting.JobRecord, error) {
	var (
		r         accounting.JobRecord
		qos       sql.NullString
		state     string
		submitRaw string
		startRaw  sql.NullString
		endRaw    sql.NullString
		nodeList  sql.NullString
	)

	if err := rows.Scan(&r.JobID, &r.User, &r.Account, &r.Partition, &qos, &state,
		&submitRaw, &startRaw, &endRaw, &r.CPUHours, &r.GPUHours,
		&r.AllocCPUs, &r.AllocGPUs, &r.AllocNodes, &nodeList); err != nil {
		return r, fmt.Errorf("scan job row: %w", err)
	}

	if qos.Valid {
		r.QOS = qos.String
	}
	r.State = accounting.JobState(state)

	submit, err := time.Parse(time.RFC3339, submitRaw)
	if err != nil {
		return r, fmt.Errorf("parse submit_time for %s: %w", r.JobID, err)
	}
	r.SubmitTime = submit

	if r.StartTime, err = parseOptionalDBTime(startRaw); err != nil {
		return r, fmt.Errorf("parse start_time for %s: %w", r.JobID, err)
	}
	if r.EndTime, err = parseOptionalDBTime(endRaw); err != nil {
		return r, fmt.Errorf("parse end_time for %s: %w", r.JobID, err)
	}

	if nodeList.Valid && nodeList.String != "" {
		if err := json.Unmarshal([]byte(nodeList.String), &r.NodeList); err != nil {
			return r, fmt.Errorf("decode node_list for %s: %w", r.JobID, err)
		}
	}

	return r, nil
}

func parseOptionalDBTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func appendInClause(query string, args []any, column string, values []string) (string, []any) {
	if len(values) == 0 {
		return query, args
	}
	query += ` AND ` + column + ` IN (?`
	args = append(args, values[0])
	for _, v := range values[1:] {
		query += `,?`
		args = append(args, v)
	}
	query += `)`
	return query, args
}

func stateStrings(states []accounting.JobState) []string {
	if len(states) == 0 {
		return nil
	}
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
