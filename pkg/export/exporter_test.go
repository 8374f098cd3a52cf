package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfoothills/slurmsight/pkg/accounting"
	"github.com/openfoothills/slurmsight/pkg/capacity"
	"github.com/openfoothills/slurmsight/pkg/engine"
	"github.com/openfoothills/slurmsight/pkg/report"
)

type memorySink struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemorySink() *memorySink {
	return &memorySink{objects: make(map[string][]byte)}
}

func (m *memorySink) Store(_ context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

type staticSource struct {
	records []accounting.JobRecord
}

func (s *staticSource) Fetch(_ context.Context, _ string, start, end time.Time, _ accounting.Filter) ([]accounting.JobRecord, error) {
	var out []accounting.JobRecord
	for _, r := range s.records {
		if !r.SubmitTime.Before(start) && !r.SubmitTime.After(end.AddDate(0, 0, 1)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func sourceRecord(id string, submit time.Time) accounting.JobRecord {
	start := submit.Add(time.Minute)
	end := start.Add(time.Hour)
	return accounting.JobRecord{
		JobID:      id,
		User:       "alice",
		Account:    "physics",
		Partition:  "batch",
		State:      accounting.StateCompleted,
		SubmitTime: submit,
		StartTime:  &start,
		EndTime:    &end,
		CPUHours:   8,
	}
}

func TestExporterRun(t *testing.T) {
	src := &staticSource{records: []accounting.JobRecord{
		sourceRecord("1", time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)),
		sourceRecord("2", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		sourceRecord("3", time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)),
	}}
	eng := engine.New(engine.DefaultTuning(), capacity.EmptySnapshot())
	sink := newMemorySink()

	p, err := report.ParsePeriod("2025-03")
	require.NoError(t, err)

	exp := New(eng, src, sink, Config{Concurrency: 2, RateLimit: 100})
	now := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	sum, err := exp.Run(context.Background(), []Task{
		{Hostname: "cluster-a", Period: p},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.Reports)
	assert.Equal(t, int64(0), sum.Errors)
	assert.NotEmpty(t, sum.RunID)

	body, ok := sink.objects["cluster-a/2025-03.jsonl"]
	require.True(t, ok, "missing artifact, got keys %v", keysOf(sink))

	var rec Record
	sc := bufio.NewScanner(bytes.NewReader(body))
	require.True(t, sc.Scan())
	require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
	assert.Equal(t, TypeReport, rec.Type)
	assert.Equal(t, exp.RunID(), rec.RunID)

	var rep engine.PeriodReport
	require.NoError(t, json.Unmarshal(rec.Data, &rep))
	assert.Equal(t, float64(2), rep.Comparison.Jobs.Current)
	assert.Equal(t, float64(1), rep.Comparison.Jobs.Previous)
	assert.Equal(t, 100.0, rep.Comparison.Jobs.PctChange)

	// The run ships its own summary artifact.
	body, ok = sink.objects["runs/"+exp.RunID()+".jsonl"]
	require.True(t, ok, "missing summary artifact, got keys %v", keysOf(sink))
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(body), &rec))
	assert.Equal(t, TypeSummary, rec.Type)

	var runSum SummaryRecord
	require.NoError(t, json.Unmarshal(rec.Data, &runSum))
	assert.Equal(t, int64(1), runSum.Reports)
	assert.Equal(t, int64(0), runSum.Errors)
	assert.Equal(t, []string{"cluster-a"}, runSum.Hostnames)
}

// cancellingSource cancels the run while the first fetch is in flight.
type cancellingSource struct {
	cancel context.CancelFunc
}

func (s *cancellingSource) Fetch(ctx context.Context, _ string, _, _ time.Time, _ accounting.Filter) ([]accounting.JobRecord, error) {
	s.cancel()
	return nil, ctx.Err()
}

func TestExporterCancellationIsNotAnError(t *testing.T) {
	eng := engine.New(engine.DefaultTuning(), capacity.EmptySnapshot())
	sink := newMemorySink()

	p, err := report.ParsePeriod("2025-03")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exp := New(eng, &cancellingSource{cancel: cancel}, sink, Config{Concurrency: 1})
	now := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	sum, _ := exp.Run(ctx, []Task{
		{Hostname: "cluster-a", Period: p},
	}, now)

	assert.Equal(t, int64(0), sum.Reports)
	assert.Equal(t, int64(0), sum.Errors, "cancellation must not count as a failure")
	assert.Empty(t, keysOf(sink), "no artifacts on a cancelled run")
}

func TestExporterIncompletePeriodProducesErrorArtifact(t *testing.T) {
	eng := engine.New(engine.DefaultTuning(), capacity.EmptySnapshot())
	sink := newMemorySink()

	p, err := report.ParsePeriod("2025-03")
	require.NoError(t, err)

	exp := New(eng, &staticSource{}, sink, DefaultConfig())
	// Mid-period: the report must be refused.
	now := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	sum, err := exp.Run(context.Background(), []Task{
		{Hostname: "cluster-a", Period: p},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, int64(0), sum.Reports)
	assert.Equal(t, int64(1), sum.Errors)

	body, ok := sink.objects["cluster-a/2025-03.jsonl.error"]
	require.True(t, ok, "missing error artifact, got keys %v", keysOf(sink))

	var rec Record
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(body), &rec))
	assert.Equal(t, TypeError, rec.Type)

	var payload ErrorRecord
	require.NoError(t, json.Unmarshal(rec.Data, &payload))
	assert.Equal(t, ErrCodeIncompletePeriod, payload.Code)
	assert.Equal(t, "2025-03", payload.Period)
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(filepath.Join(dir, "exports"))
	require.NoError(t, err)

	require.NoError(t, sink.Store(context.Background(), "cluster-a/2025-03.jsonl", []byte("{}\n")))

	body, err := os.ReadFile(filepath.Join(dir, "exports", "cluster-a", "2025-03.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(body))
}

func TestFileSinkRequiresDir(t *testing.T) {
	_, err := NewFileSink("   ")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "required"))
}

func keysOf(m *memorySink) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
