// Package engine orchestrates the aggregation pipeline: bucketing,
// grouping, summarization, series building, and period comparison.
//
// The engine is a stateless pure function of (records, request). All
// intermediate structures are request-local, so concurrent Aggregate
// calls never interfere; the only shared input, the capacity resolver,
// is an immutable snapshot. Cancellation and timeouts belong to the
// calling layer — one aggregation is bounded by the size of one filtered
// record set.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/openfoothills/slurmsight/pkg/accounting"
	"github.com/openfoothills/slurmsight/pkg/grouping"
	"github.com/openfoothills/slurmsight/pkg/report"
	"github.com/openfoothills/slurmsight/pkg/series"
	"github.com/openfoothills/slurmsight/pkg/stats"
	"github.com/openfoothills/slurmsight/pkg/timebucket"
)

// Request is one immutable aggregation request.
type Request struct {
	// Hostname is the cluster the records belong to (metadata only; the
	// caller already fetched records for this host).
	Hostname string `json:"hostname"`

	// Start and End are the inclusive date range. Jobs submitted outside
	// the range are excluded before bucketing.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Filter optionally narrows the record set by category.
	Filter accounting.Filter `json:"filter,omitzero"`

	// GroupBy optionally splits series by a dimension
	// (account/partition/state/qos/user).
	GroupBy string `json:"group_by,omitempty"`

	// Granularity is the bucket size; empty or "auto" selects from the
	// date range.
	Granularity string `json:"granularity,omitempty"`

	// Metric is the quantity charted on timelines and breakdowns
	// (jobs/cpu_hours/gpu_hours). Empty means job count.
	Metric string `json:"metric,omitempty"`

	// TopN caps retained groups; zero uses the configured default.
	TopN int `json:"top_n,omitempty"`

	// Normalize requests node-capacity utilization output.
	Normalize bool `json:"normalize,omitempty"`

	// HideZero drops all-zero sub-series from grouped timelines.
	HideZero bool `json:"hide_zero,omitempty"`

	// SortSlices orders breakdown slices by value descending ("Other"
	// stays last) instead of top-N rank order.
	SortSlices bool `json:"sort,omitempty"`

	// HistogramBins and HistogramMode tune histogram output; zero values
	// fall back to configuration defaults.
	HistogramBins int            `json:"histogram_bins,omitempty"`
	HistogramMode series.BinMode `json:"histogram_mode,omitempty"`
}

// Tuning holds the engine defaults that are configuration, not
// constants: the auto-granularity band, group retention, and histogram
// shape.
type Tuning struct {
	AutoThresholds timebucket.AutoThresholds
	DefaultTopN    int
	HistogramBins  int
}

// DefaultTuning returns the stock tuning.
func DefaultTuning() Tuning {
	return Tuning{
		AutoThresholds: timebucket.DefaultAutoThresholds(),
		DefaultTopN:    grouping.DefaultTopN,
		HistogramBins:  series.DefaultHistogramBins,
	}
}

// Engine runs aggregation requests. It carries no mutable state and is
// safe for concurrent use.
type Engine struct {
	tuning   Tuning
	capacity series.CapacityResolver
}

// New creates an engine. resolver may not be nil; use
// capacity.EmptySnapshot() when no capacity configuration exists.
func New(tuning Tuning, resolver series.CapacityResolver) *Engine {
	if tuning.DefaultTopN <= 0 {
		tuning.DefaultTopN = grouping.DefaultTopN
	}
	if tuning.HistogramBins <= 0 {
		tuning.HistogramBins = series.DefaultHistogramBins
	}
	if tuning.AutoThresholds == (timebucket.AutoThresholds{}) {
		tuning.AutoThresholds = timebucket.DefaultAutoThresholds()
	}
	return &Engine{tuning: tuning, capacity: resolver}
}

// Result is the chart-ready output of one aggregation request. It is
// never mutated after construction.
type Result struct {
	Hostname    string                 `json:"hostname"`
	Start       time.Time              `json:"start"`
	End         time.Time              `json:"end"`
	Granularity timebucket.Granularity `json:"granularity"`

	// NoData marks the empty-input result: no records survived the
	// filter. Distinct from a result whose observed values are zero.
	NoData bool `json:"no_data,omitempty"`

	Totals report.Totals `json:"totals"`

	// Timeline is the metric per bucket; grouped when GroupBy was set.
	Timeline series.Timeline `json:"timeline"`

	// Stacked is the per-bucket percentage view. Present only for
	// grouped requests.
	Stacked *series.Timeline `json:"stacked,omitempty"`

	// Breakdown is the categorical totals view. Present only for
	// grouped requests.
	Breakdown *series.Breakdown `json:"breakdown,omitempty"`

	// Distribution histograms and summaries over derived fields.
	// Records without a defined duration/wait are excluded, not zeroed.
	DurationHistogram series.Histogram `json:"duration_histogram"`
	WaitingHistogram  series.Histogram `json:"waiting_histogram"`
	DurationStats     stats.Summary    `json:"duration_stats"`
	WaitingStats      stats.Summary    `json:"waiting_stats"`
	CPUHoursStats     stats.Summary    `json:"cpu_hours_stats"`

	// Nodes is per-node utilization; present when Normalize was set.
	Nodes []series.NodeUtilization `json:"nodes,omitempty"`
}

// Aggregate runs the full pipeline over a snapshot of records.
//
// It is pure and synchronous: identical inputs produce identical
// results. Request-level contract violations (inverted range, unknown
// dimension or granularity) fail fast; malformed individual records
// degrade gracefully by dropping out of the statistics that depend on
// the malformed field.
func (e *Engine) Aggregate(records []accounting.JobRecord, req Request) (*Result, error) {
	if err := timebucket.ValidateRange(req.Start, req.End); err != nil {
		return nil, err
	}

	gran, err := timebucket.ParseGranularity(req.Granularity)
	if err != nil {
		return nil, err
	}
	gran, err = timebucket.Select(req.Start, req.End, gran, e.tuning.AutoThresholds)
	if err != nil {
		return nil, err
	}

	var dim grouping.Dimension
	if req.GroupBy != "" {
		dim, err = grouping.ParseDimension(req.GroupBy)
		if err != nil {
			return nil, err
		}
	}

	metric, err := grouping.ParseMetric(req.Metric)
	if err != nil {
		return nil, fmt.Errorf("invalid request metric: %w", err)
	}

	topN := req.TopN
	if topN <= 0 {
		topN = e.tuning.DefaultTopN
	}
	bins := req.HistogramBins
	if bins <= 0 {
		bins = e.tuning.HistogramBins
	}
	mode, err := series.ParseBinMode(string(req.HistogramMode))
	if err != nil {
		return nil, err
	}

	// End of the last day: the range is inclusive in dates.
	endInstant := req.End.AddDate(0, 0, 1).Add(-time.Nanosecond)

	scoped := clipToRange(req.Filter.Apply(records), req.Start, endInstant)

	res := &Result{
		Hostname:    req.Hostname,
		Start:       req.Start,
		End:         req.End,
		Granularity: gran,
		NoData:      len(scoped) == 0,
		Totals:      report.TotalsOf(scoped),
	}

	if dim != "" {
		tl, err := series.BuildGroupedTimeline(scoped, req.Start, endInstant, gran, dim, topN, metric)
		if err != nil {
			return nil, err
		}
		if req.HideZero {
			tl = dropZeroSeries(tl)
		}
		res.Timeline = tl

		stacked := series.StackedPercent(tl)
		res.Stacked = &stacked

		breakdown, err := series.BuildBreakdown(scoped, dim, topN, metric)
		if err != nil {
			return nil, err
		}
		if req.SortSlices {
			sortSlices(&breakdown)
		}
		res.Breakdown = &breakdown
	} else {
		res.Timeline = series.BuildTimeline(scoped, req.Start, endInstant, gran, metric)
	}

	durations, waits := derivedValues(scoped)
	res.DurationHistogram = series.BuildHistogram("duration", "hours", durations, bins, mode)
	res.WaitingHistogram = series.BuildHistogram("waiting_time", "hours", waits, bins, mode)
	res.DurationStats = res.DurationHistogram.Summary
	res.WaitingStats = res.WaitingHistogram.Summary

	cpuHours := make([]float64, len(scoped))
	for i := range scoped {
		cpuHours[i] = scoped[i].CPUHours
	}
	res.CPUHoursStats = stats.Summarize(cpuHours)

	if req.Normalize {
		periodHours := endInstant.Sub(req.Start).Hours()
		res.Nodes = series.BuildNodeUtilization(scoped, periodHours, e.capacity)
	}

	return res, nil
}

// RecordSource is the job record store contract the engine consumes.
// Implementations return records ordered by ascending job_id so that
// top-N tie-breaking is reproducible.
type RecordSource interface {
	Fetch(ctx context.Context, hostname string, start, end time.Time, f accounting.Filter) ([]accounting.JobRecord, error)
}

// PeriodReport is a calendar-period usage report with a comparison
// against the immediately preceding period.
type PeriodReport struct {
	Hostname   string            `json:"hostname"`
	Period     report.Period     `json:"period"`
	Result     *Result           `json:"result"`
	Comparison report.Comparison `json:"comparison"`
}

// BuildPeriodReport aggregates one completed calendar period and
// compares it against the preceding period of identical type.
//
// now is injected so completeness validation is testable; periods whose
// final day has not fully elapsed are rejected with
// report.ErrIncompletePeriod before any data is fetched.
func (e *Engine) BuildPeriodReport(ctx context.Context, src RecordSource, hostname string, p report.Period, f accounting.Filter, now time.Time) (*PeriodReport, error) {
	if err := p.Validate(now); err != nil {
		return nil, err
	}

	current, err := src.Fetch(ctx, hostname, p.Start, p.End, f)
	if err != nil {
		return nil, fmt.Errorf("fetch current period: %w", err)
	}

	prev := p.Previous()
	previous, err := src.Fetch(ctx, hostname, prev.Start, prev.End, f)
	if err != nil {
		return nil, fmt.Errorf("fetch previous period: %w", err)
	}

	res, err := e.Aggregate(current, Request{
		Hostname: hostname,
		Start:    p.Start,
		End:      p.End,
		Filter:   f,
	})
	if err != nil {
		return nil, err
	}

	return &PeriodReport{
		Hostname:   hostname,
		Period:     p,
		Result:     res,
		Comparison: report.Compare(p, report.TotalsOf(current), report.TotalsOf(previous)),
	}, nil
}

// ComparePeriods compares already-computed totals for a period against
// its predecessor. Pure and synchronous; completeness is validated the
// same way report generation does.
func ComparePeriods(p report.Period, current, previous report.Totals, now time.Time) (report.Comparison, error) {
	if err := p.Validate(now); err != nil {
		return report.Comparison{}, err
	}
	return report.Compare(p, current, previous), nil
}

func clipToRange(records []accounting.JobRecord, start, end time.Time) []accounting.JobRecord {
	out := make([]accounting.JobRecord, 0, len(records))
	for i := range records {
		if records[i].SubmitTime.Before(start) || records[i].SubmitTime.After(end) {
			continue
		}
		out = append(out, records[i])
	}
	return out
}

func derivedValues(records []accounting.JobRecord) (durations, waits []float64) {
	for i := range records {
		if d, ok := records[i].DurationHours(); ok {
			durations = append(durations, d)
		}
		if w, ok := records[i].WaitingHours(); ok {
			waits = append(waits, w)
		}
	}
	return durations, waits
}

func dropZeroSeries(tl series.Timeline) series.Timeline {
	kept := tl.Series[:0:0]
	for _, s := range tl.Series {
		if s.Total != 0 {
			kept = append(kept, s)
		}
	}
	tl.Series = kept
	return tl
}

func sortSlices(b *series.Breakdown) {
	sort.SliceStable(b.Slices, func(i, j int) bool {
		// "Other" renders last regardless of size.
		if b.Slices[i].Label == grouping.OtherLabel {
			return false
		}
		if b.Slices[j].Label == grouping.OtherLabel {
			return true
		}
		return b.Slices[i].Value > b.Slices[j].Value
	})
}
