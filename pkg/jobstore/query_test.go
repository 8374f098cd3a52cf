package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfoothills/slurmsight/pkg/accounting"
)

func TestQueryJobsFilters(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{Path: ":memory:"})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, Migrate(ctx, db))

	run, err := CreateIngestRun(ctx, db, "cluster-a", "jobs.jsonl")
	require.NoError(t, err)

	day := func(d int, hh int) time.Time {
		return time.Date(2025, 3, d, hh, 0, 0, 0, time.UTC)
	}

	records := []accounting.JobRecord{
		testRecord("1001", day(1, 9)),
		testRecord("1002", day(5, 9)),
		testRecord("1003", day(10, 9)),
	}
	records[1].Account = "chem"
	records[1].User = "bob"
	records[2].State = accounting.StateFailed
	require.NoError(t, BatchUpsertJobs(ctx, db, "cluster-a", run.RunID, records))

	t.Run("requires hostname", func(t *testing.T) {
		_, err := QueryJobs(ctx, db, QueryParams{})
		require.Error(t, err)
	})

	t.Run("submit time range is inclusive", func(t *testing.T) {
		got, err := QueryJobs(ctx, db, QueryParams{
			Hostname:        "cluster-a",
			SubmittedAfter:  day(1, 9),
			SubmittedBefore: day(5, 9),
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "1001", got[0].JobID)
		assert.Equal(t, "1002", got[1].JobID)
	})

	t.Run("account filter", func(t *testing.T) {
		got, err := QueryJobs(ctx, db, QueryParams{
			Hostname: "cluster-a",
			Filter:   accounting.Filter{Accounts: []string{"chem"}},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "1002", got[0].JobID)
	})

	t.Run("state filter", func(t *testing.T) {
		got, err := QueryJobs(ctx, db, QueryParams{
			Hostname: "cluster-a",
			Filter:   accounting.Filter{States: []accounting.JobState{accounting.StateFailed}},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "1003", got[0].JobID)
	})

	t.Run("combined filters intersect", func(t *testing.T) {
		got, err := QueryJobs(ctx, db, QueryParams{
			Hostname: "cluster-a",
			Filter: accounting.Filter{
				Accounts: []string{"chem"},
				States:   []accounting.JobState{accounting.StateFailed},
			},
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ordered by job_id", func(t *testing.T) {
		got, err := QueryJobs(ctx, db, QueryParams{Hostname: "cluster-a"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i := 1; i < len(got); i++ {
			assert.Less(t, got[i-1].JobID, got[i].JobID)
		}
	})

	t.Run("limit", func(t *testing.T) {
		got, err := QueryJobs(ctx, db, QueryParams{Hostname: "cluster-a", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestQueryJobsPattern(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{Path: ":memory:"})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, Migrate(ctx, db))

	run, err := CreateIngestRun(ctx, db, "cluster-a", "jobs.jsonl")
	require.NoError(t, err)

	submit := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	require.NoError(t, BatchUpsertJobs(ctx, db, "cluster-a", run.RunID, []accounting.JobRecord{
		testRecord("5000_1", submit),
		testRecord("5000_2", submit),
		testRecord("6000", submit),
	}))

	t.Run("array job glob", func(t *testing.T) {
		got, err := QueryJobs(ctx, db, QueryParams{Hostname: "cluster-a", JobPattern: "5000_*"})
		require.NoError(t, err)
		require.Len(t, got, 2)
	})

	t.Run("invalid pattern rejected", func(t *testing.T) {
		_, err := QueryJobs(ctx, db, QueryParams{Hostname: "cluster-a", JobPattern: "[bad"})
		require.Error(t, err)
	})
}

func TestStoreFetchCoversEndDate(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{Path: ":memory:"})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, Migrate(ctx, db))

	run, err := CreateIngestRun(ctx, db, "cluster-a", "jobs.jsonl")
	require.NoError(t, err)

	// Submitted 23:30 on the range's final day.
	late := time.Date(2025, 3, 7, 23, 30, 0, 0, time.UTC)
	require.NoError(t, UpsertJob(ctx, db, "cluster-a", run.RunID, testRecord("9001", late)))

	store := NewStore(db)
	got, err := store.Fetch(ctx, "cluster-a",
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC),
		accounting.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "9001", got[0].JobID)
}
