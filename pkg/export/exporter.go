package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/openfoothills/slurmsight/pkg/accounting"
	"github.com/openfoothills/slurmsight/pkg/engine"
	"github.com/openfoothills/slurmsight/pkg/report"
)

// Config configures a bulk export run.
type Config struct {
	// Concurrency is the number of report workers. Defaults to 4.
	Concurrency int

	// RateLimit caps report generation per second across all workers.
	// Zero means unlimited. Useful when the job store is shared with an
	// interactive dashboard.
	RateLimit float64
}

// DefaultConfig returns the stock exporter configuration.
func DefaultConfig() Config {
	return Config{Concurrency: 4}
}

// Task names one report to export: a cluster and a completed period.
type Task struct {
	Hostname string
	Period   report.Period
	Filter   accounting.Filter
}

// Summary holds aggregate statistics for one export run.
type Summary struct {
	// RunID is the correlation ID stamped on every emitted record.
	RunID string

	// Reports is the number of period reports exported.
	Reports int64

	// Errors is the count of non-fatal errors encountered.
	Errors int64

	// Duration is the total time spent exporting.
	Duration time.Duration
}

// Exporter generates period reports in bulk and ships each as a JSONL
// artifact to a sink.
//
// Exporter is safe for single use only. Create a new Exporter for each run.
type Exporter struct {
	engine *engine.Engine
	source engine.RecordSource
	sink   Sink
	config Config
	runID  string

	// Rate limiter (nil if unlimited)
	limiter *rate.Limiter

	// Atomic counters for stats
	reports    atomic.Int64
	errorCount atomic.Int64
}

// New creates an exporter.
func New(eng *engine.Engine, src engine.RecordSource, sink Sink, cfg Config) *Exporter {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}

	e := &Exporter{
		engine: eng,
		source: src,
		sink:   sink,
		config: cfg,
		runID:  uuid.NewString(),
	}

	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return e
}

// RunID returns the correlation ID for this export run.
func (e *Exporter) RunID() string {
	return e.runID
}

// Run exports every task and returns summary statistics.
//
// Run blocks until all tasks complete or the context is cancelled.
// Per-task failures (incomplete period, fetch error, sink error) are
// counted and shipped as error artifacts rather than aborting the run;
// cancellation is the only fatal condition. A completed run also ships
// a summary artifact under runs/<run_id>.jsonl.
func (e *Exporter) Run(ctx context.Context, tasks []Task, now time.Time) (*Summary, error) {
	startTime := time.Now()

	work := make(chan Task)
	var wg sync.WaitGroup
	for i := 0; i < e.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range work {
				e.exportOne(ctx, task, now)
			}
		}()
	}

	var cancelled error
feed:
	for _, task := range tasks {
		select {
		case work <- task:
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		}
	}
	close(work)
	wg.Wait()

	if cancelled == nil && ctx.Err() == nil {
		if err := e.storeSummary(ctx, tasks, time.Since(startTime)); err != nil && !isCancellation(err) {
			e.errorCount.Add(1)
		}
	}

	summary := &Summary{
		RunID:    e.runID,
		Reports:  e.reports.Load(),
		Errors:   e.errorCount.Load(),
		Duration: time.Since(startTime),
	}
	return summary, cancelled
}

// storeSummary ships the end-of-run summary artifact.
func (e *Exporter) storeSummary(ctx context.Context, tasks []Task, elapsed time.Duration) error {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, e.runID)
	rec := &SummaryRecord{
		Reports:       e.reports.Load(),
		Errors:        e.errorCount.Load(),
		Duration:      elapsed,
		DurationHuman: elapsed.Round(time.Millisecond).String(),
		Hostnames:     taskHostnames(tasks),
	}
	if err := w.WriteSummary(ctx, rec); err != nil {
		return err
	}
	return e.sink.Store(ctx, summaryKey(e.runID), buf.Bytes())
}

func taskHostnames(tasks []Task) []string {
	seen := make(map[string]struct{}, len(tasks))
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, ok := seen[t.Hostname]; ok {
			continue
		}
		seen[t.Hostname] = struct{}{}
		out = append(out, t.Hostname)
	}
	sort.Strings(out)
	return out
}

func (e *Exporter) exportOne(ctx context.Context, task Task, now time.Time) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return
		}
	}

	rep, err := e.engine.BuildPeriodReport(ctx, e.source, task.Hostname, task.Period, task.Filter, now)
	if err != nil {
		// Cancellation is not a task failure; the run reports it.
		if isCancellation(err) {
			return
		}
		e.errorCount.Add(1)
		e.storeError(ctx, task, err)
		return
	}

	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, e.runID)
	if err := w.WriteReport(ctx, rep); err != nil {
		if !isCancellation(err) {
			e.errorCount.Add(1)
		}
		return
	}

	key := artifactKey(task.Hostname, task.Period)
	if err := e.sink.Store(ctx, key, buf.Bytes()); err != nil {
		if !isCancellation(err) {
			e.errorCount.Add(1)
		}
		return
	}

	e.reports.Add(1)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Exporter) storeError(ctx context.Context, task Task, cause error) {
	code := ErrCodeInternal
	switch {
	case errors.Is(cause, report.ErrIncompletePeriod):
		code = ErrCodeIncompletePeriod
	case isCancellation(cause):
		return
	}

	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, e.runID)
	rec := &ErrorRecord{Code: code, Message: cause.Error(), Period: task.Period.Label()}
	if err := w.WriteError(ctx, rec); err != nil {
		return
	}
	// Best effort: a failed error artifact should not mask the original failure.
	_ = e.sink.Store(ctx, artifactKey(task.Hostname, task.Period)+".error", buf.Bytes())
}

func artifactKey(hostname string, p report.Period) string {
	return fmt.Sprintf("%s/%s.jsonl", hostname, p.Label())
}

func summaryKey(runID string) string {
	return fmt.Sprintf("runs/%s.jsonl", runID)
}
