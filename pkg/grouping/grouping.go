// Package grouping splits job records along a categorical dimension and
// collapses the long tail into a deterministic "Other" group.
//
// Group values are taken verbatim from the records: no case folding, no
// trimming. Upstream data quality passes through so distinct casings
// surface as distinct groups instead of being silently merged.
package grouping

import (
	"errors"
	"fmt"
	"sort"

	"github.com/openfoothills/slurmsight/pkg/accounting"
)

// Dimension is a categorical field of a job record usable for group-by.
type Dimension string

const (
	ByAccount   Dimension = "account"
	ByPartition Dimension = "partition"
	ByState     Dimension = "state"
	ByQOS       Dimension = "qos"
	ByUser      Dimension = "user"
)

// Labels for synthetic groups.
const (
	// OtherLabel is the merged remainder below the top-N cut.
	OtherLabel = "Other"

	// UnsetLabel is the group for records whose dimension value is empty
	// (e.g. a job with no account). Keeping them in an explicit group
	// preserves job-count totals.
	UnsetLabel = "(unset)"
)

// ErrUnknownDimension indicates a group_by value outside the supported set.
var ErrUnknownDimension = errors.New("unknown group-by dimension")

// ParseDimension validates a request-supplied group_by value.
func ParseDimension(s string) (Dimension, error) {
	switch Dimension(s) {
	case ByAccount, ByPartition, ByState, ByQOS, ByUser:
		return Dimension(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDimension, s)
	}
}

// Value extracts the dimension value from a record, mapping empty values
// to UnsetLabel.
func Value(d Dimension, r *accounting.JobRecord) string {
	var v string
	switch d {
	case ByAccount:
		v = r.Account
	case ByPartition:
		v = r.Partition
	case ByState:
		v = string(r.State)
	case ByQOS:
		v = r.QOS
	case ByUser:
		v = r.User
	}
	if v == "" {
		return UnsetLabel
	}
	return v
}

// StrategyKind selects how groups are ranked for the top-N cut.
type StrategyKind string

const (
	// StrategyByCount ranks groups by job count.
	StrategyByCount StrategyKind = "count"

	// StrategyByMetric ranks groups by a summed record metric.
	StrategyByMetric StrategyKind = "metric"
)

// Metric is a summable per-record quantity.
type Metric string

const (
	MetricJobs     Metric = "jobs"
	MetricCPUHours Metric = "cpu_hours"
	MetricGPUHours Metric = "gpu_hours"
)

// Value returns the record's contribution to the metric (1 for job count).
func (m Metric) Value(r *accounting.JobRecord) float64 {
	switch m {
	case MetricCPUHours:
		return r.CPUHours
	case MetricGPUHours:
		return r.GPUHours
	default:
		return 1
	}
}

// Unit is the display unit for the metric.
func (m Metric) Unit() string {
	switch m {
	case MetricCPUHours:
		return "CPU-hours"
	case MetricGPUHours:
		return "GPU-hours"
	default:
		return "jobs"
	}
}

// ParseMetric validates a request-supplied metric name. An empty string
// means job count.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "":
		return MetricJobs, nil
	case MetricJobs, MetricCPUHours, MetricGPUHours:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unknown metric: %q", s)
	}
}

// Strategy is the named ranking strategy for top-N selection. Using an
// explicit strategy (rather than ad hoc sorting at call sites) pins the
// ordering and tie-break rules.
type Strategy struct {
	Kind   StrategyKind
	Metric Metric
}

// ByCount ranks groups by number of jobs.
func ByCount() Strategy {
	return Strategy{Kind: StrategyByCount}
}

// ByMetric ranks groups by the summed metric.
func ByMetric(m Metric) Strategy {
	return Strategy{Kind: StrategyByMetric, Metric: m}
}

func (s Strategy) recordValue(r *accounting.JobRecord) float64 {
	if s.Kind != StrategyByMetric {
		return 1
	}
	return s.Metric.Value(r)
}

// Group is one retained category (or the synthetic Other/(unset) groups).
type Group struct {
	// Label is the raw dimension value, or OtherLabel / UnsetLabel.
	Label string

	// Metric is the group total under the ranking strategy.
	Metric float64

	// Jobs is the record count in the group.
	Jobs int

	// Indices are positions into the input slice, in input order. They
	// let callers re-aggregate group members without copying records.
	Indices []int
}

// Partition groups records by dim and keeps the topN groups under the
// strategy, merging the rest into Other.
//
// Determinism contract: groups tied at the topN boundary are broken by
// first-seen order in the input. Callers therefore must supply records in
// a fixed order (the store orders by ascending job_id) for reproducible
// output.
func Partition(records []accounting.JobRecord, dim Dimension, topN int, strat Strategy) ([]Group, error) {
	if _, err := ParseDimension(string(dim)); err != nil {
		return nil, err
	}
	if topN <= 0 {
		topN = DefaultTopN
	}

	type bucket struct {
		group     Group
		firstSeen int
	}

	index := make(map[string]*bucket)
	var order []*bucket

	for i := range records {
		label := Value(dim, &records[i])
		b, ok := index[label]
		if !ok {
			b = &bucket{group: Group{Label: label}, firstSeen: i}
			index[label] = b
			order = append(order, b)
		}
		b.group.Metric += strat.recordValue(&records[i])
		b.group.Jobs++
		b.group.Indices = append(b.group.Indices, i)
	}

	if len(order) == 0 {
		return nil, nil
	}

	// Rank by metric descending; ties resolve to first-seen input order.
	sort.SliceStable(order, func(a, b int) bool {
		if order[a].group.Metric != order[b].group.Metric {
			return order[a].group.Metric > order[b].group.Metric
		}
		return order[a].firstSeen < order[b].firstSeen
	})

	if len(order) <= topN {
		out := make([]Group, len(order))
		for i, b := range order {
			out[i] = b.group
		}
		return out, nil
	}

	out := make([]Group, 0, topN+1)
	for _, b := range order[:topN] {
		out = append(out, b.group)
	}

	other := Group{Label: OtherLabel}
	for _, b := range order[topN:] {
		other.Metric += b.group.Metric
		other.Jobs += b.group.Jobs
		other.Indices = append(other.Indices, b.group.Indices...)
	}
	sort.Ints(other.Indices)
	out = append(out, other)

	return out, nil
}

// DefaultTopN is the group retention count when the request does not set
// one. It is overridable through configuration.
const DefaultTopN = 10
