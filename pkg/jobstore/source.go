package jobstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/openfoothills/slurmsight/pkg/accounting"
)

// Store bundles an open job database behind the record-source contract
// the aggregation engine consumes.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for maintenance operations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Fetch reads records for one cluster submitted inside the inclusive
// date range, ordered by job_id. The end date covers its whole day.
func (s *Store) Fetch(ctx context.Context, hostname string, start, end time.Time, f accounting.Filter) ([]accounting.JobRecord, error) {
	return QueryJobs(ctx, s.db, QueryParams{
		Hostname:        hostname,
		SubmittedAfter:  start,
		SubmittedBefore: end.AddDate(0, 0, 1).Add(-time.Nanosecond),
		Filter:          f,
	})
}
