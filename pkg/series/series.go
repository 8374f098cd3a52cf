// Package series turns filtered job records into chart-ready structures:
// timelines aligned to a gap-free bucket axis, stacked percentage views,
// value histograms, and node-capacity utilization tables.
//
// Builders are pure functions over their inputs. All output structures
// carry enough metadata (labels, units, totals) for direct rendering and
// are never mutated after construction.
package series

import (
	"time"

	"github.com/openfoothills/slurmsight/pkg/accounting"
	"github.com/openfoothills/slurmsight/pkg/grouping"
	"github.com/openfoothills/slurmsight/pkg/timebucket"
)

// Point is one bucket of a timeline series.
type Point struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

// Series is one labeled sequence aligned to a timeline axis.
type Series struct {
	Label  string  `json:"label"`
	Unit   string  `json:"unit"`
	Total  float64 `json:"total"`
	Points []Point `json:"points"`
}

// Timeline is a set of series sharing one bucket axis. Ungrouped
// timelines carry a single series; grouped timelines carry one series
// per retained category (including "Other" and "(unset)").
type Timeline struct {
	Granularity timebucket.Granularity `json:"granularity"`
	Periods     []string               `json:"periods"`
	Series      []Series               `json:"series"`
}

// Total sums every series total.
func (t Timeline) Total() float64 {
	sum := 0.0
	for _, s := range t.Series {
		sum += s.Total
	}
	return sum
}

// BuildTimeline buckets records on their submit time and sums the metric
// per bucket. The axis covers [start, end] with no gaps; buckets without
// records hold explicit zeros. Records outside the range are excluded.
func BuildTimeline(records []accounting.JobRecord, start, end time.Time, g timebucket.Granularity, metric grouping.Metric) Timeline {
	axis := timebucket.Axis(start, end, g)
	s := newAxisSeries("", metric.Unit(), axis)
	pos := axisIndex(axis)

	for i := range records {
		r := &records[i]
		if outsideRange(r.SubmitTime, start, end) {
			continue
		}
		if p, ok := pos[timebucket.PeriodKey(r.SubmitTime, g)]; ok {
			v := metric.Value(r)
			s.Points[p].Value += v
			s.Total += v
		}
	}

	return Timeline{Granularity: g, Periods: axis, Series: []Series{s}}
}

// BuildGroupedTimeline builds one sub-series per retained category of the
// group-by dimension, each aligned to the same axis. A category with no
// records in a bucket holds zero for that bucket.
func BuildGroupedTimeline(records []accounting.JobRecord, start, end time.Time, g timebucket.Granularity, dim grouping.Dimension, topN int, metric grouping.Metric) (Timeline, error) {
	strat := grouping.ByCount()
	if metric != grouping.MetricJobs {
		strat = grouping.ByMetric(metric)
	}

	groups, err := grouping.Partition(records, dim, topN, strat)
	if err != nil {
		return Timeline{}, err
	}

	axis := timebucket.Axis(start, end, g)
	pos := axisIndex(axis)

	out := Timeline{Granularity: g, Periods: axis}
	for _, grp := range groups {
		s := newAxisSeries(grp.Label, metric.Unit(), axis)
		for _, idx := range grp.Indices {
			r := &records[idx]
			if outsideRange(r.SubmitTime, start, end) {
				continue
			}
			if p, ok := pos[timebucket.PeriodKey(r.SubmitTime, g)]; ok {
				v := metric.Value(r)
				s.Points[p].Value += v
				s.Total += v
			}
		}
		out.Series = append(out.Series, s)
	}

	return out, nil
}

// StackedPercent converts a grouped timeline into a distribution-over-time
// view: per bucket, series values are normalized to sum to 100. Buckets
// whose total is zero stay all-zero rather than producing NaN, so
// renderers never see undefined values.
func StackedPercent(tl Timeline) Timeline {
	out := Timeline{Granularity: tl.Granularity, Periods: tl.Periods}
	if len(tl.Series) == 0 {
		return out
	}

	bucketTotals := make([]float64, len(tl.Periods))
	for _, s := range tl.Series {
		for i, p := range s.Points {
			bucketTotals[i] += p.Value
		}
	}

	for _, s := range tl.Series {
		pct := Series{Label: s.Label, Unit: "%", Points: make([]Point, len(s.Points))}
		for i, p := range s.Points {
			pct.Points[i] = Point{Period: p.Period}
			if bucketTotals[i] > 0 {
				pct.Points[i].Value = 100 * p.Value / bucketTotals[i]
			}
			pct.Total += pct.Points[i].Value
		}
		out.Series = append(out.Series, pct)
	}

	return out
}

// Slice is one category of a Breakdown.
type Slice struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Jobs  int     `json:"jobs"`
}

// Breakdown is a categorical (pie-style) view of a metric.
type Breakdown struct {
	Dimension grouping.Dimension `json:"dimension"`
	Unit      string             `json:"unit"`
	Total     float64            `json:"total"`
	Slices    []Slice            `json:"slices"`
}

// BuildBreakdown aggregates the metric per retained category.
func BuildBreakdown(records []accounting.JobRecord, dim grouping.Dimension, topN int, metric grouping.Metric) (Breakdown, error) {
	strat := grouping.ByCount()
	if metric != grouping.MetricJobs {
		strat = grouping.ByMetric(metric)
	}

	groups, err := grouping.Partition(records, dim, topN, strat)
	if err != nil {
		return Breakdown{}, err
	}

	out := Breakdown{Dimension: dim, Unit: metric.Unit()}
	for _, g := range groups {
		out.Slices = append(out.Slices, Slice{Label: g.Label, Value: g.Metric, Jobs: g.Jobs})
		out.Total += g.Metric
	}
	return out, nil
}

func newAxisSeries(label, unit string, axis []string) Series {
	points := make([]Point, len(axis))
	for i, period := range axis {
		points[i] = Point{Period: period}
	}
	return Series{Label: label, Unit: unit, Points: points}
}

func axisIndex(axis []string) map[string]int {
	pos := make(map[string]int, len(axis))
	for i, k := range axis {
		pos[k] = i
	}
	return pos
}

func outsideRange(t, start, end time.Time) bool {
	return t.Before(start) || t.After(end)
}
