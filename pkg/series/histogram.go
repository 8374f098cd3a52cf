package series

import (
	"errors"
	"fmt"

	"github.com/openfoothills/slurmsight/pkg/stats"
)

// BinMode selects how histogram bin edges are derived.
type BinMode string

const (
	// BinFixedWidth derives equal-width bins from the observed min/max.
	BinFixedWidth BinMode = "fixed"

	// BinQuantile places bin edges at equally spaced quantiles of the
	// observed values, so each bin holds roughly the same share.
	BinQuantile BinMode = "quantile"
)

// ErrUnknownBinMode reports an unrecognized histogram bin mode.
var ErrUnknownBinMode = errors.New("unknown histogram bin mode")

// ParseBinMode parses a bin mode name. Empty input selects fixed width.
func ParseBinMode(s string) (BinMode, error) {
	switch BinMode(s) {
	case "", BinFixedWidth:
		return BinFixedWidth, nil
	case BinQuantile:
		return BinQuantile, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBinMode, s)
}

// DefaultHistogramBins is the bin count when the request does not set one.
const DefaultHistogramBins = 20

// HistogramBin is one interval of a histogram. Bins are half-open
// [Low, High) except the last, which is closed to include the maximum.
type HistogramBin struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// Histogram is a binned distribution of a numeric metric.
//
// A histogram with Count == 0 is the "no data" form: Bins is empty and
// the summary is the no-data sentinel.
type Histogram struct {
	Metric  string         `json:"metric"`
	Unit    string         `json:"unit"`
	Mode    BinMode        `json:"mode"`
	Count   int            `json:"count"`
	Bins    []HistogramBin `json:"bins,omitempty"`
	Summary stats.Summary  `json:"summary"`
}

// BuildHistogram bins values for the named metric.
//
// Bin edges are derived deterministically from the observed min/max (or
// observed quantiles), never from hardcoded ranges, since typical value
// ranges differ per cluster. bins <= 0 falls back to
// DefaultHistogramBins.
func BuildHistogram(metric, unit string, values []float64, bins int, mode BinMode) Histogram {
	h := Histogram{Metric: metric, Unit: unit, Mode: mode, Count: len(values), Summary: stats.Summarize(values)}
	if len(values) == 0 {
		return h
	}
	if bins <= 0 {
		bins = DefaultHistogramBins
	}

	min, max := h.Summary.Min, h.Summary.Max
	if min == max {
		// Degenerate distribution: one bin holding everything.
		h.Bins = []HistogramBin{{Low: min, High: max, Count: len(values)}}
		return h
	}

	edges := make([]float64, 0, bins+1)
	switch mode {
	case BinQuantile:
		for i := 0; i <= bins; i++ {
			p := float64(i) / float64(bins) * 100
			v, _ := stats.Percentile(values, p)
			edges = append(edges, v)
		}
	default:
		width := (max - min) / float64(bins)
		for i := 0; i <= bins; i++ {
			edges = append(edges, min+width*float64(i))
		}
		// Guard against floating point drift on the upper edge.
		edges[bins] = max
	}

	h.Bins = make([]HistogramBin, 0, bins)
	for i := 0; i < bins; i++ {
		// Quantile edges can coincide when the data is heavily repeated;
		// empty intervals are kept so bin positions stay aligned.
		h.Bins = append(h.Bins, HistogramBin{Low: edges[i], High: edges[i+1]})
	}

	for _, v := range values {
		h.Bins[binFor(edges, v)].Count++
	}

	return h
}

// binFor locates the half-open interval containing v; the maximum lands
// in the last bin.
func binFor(edges []float64, v float64) int {
	last := len(edges) - 2
	for i := 0; i < last; i++ {
		if v < edges[i+1] {
			return i
		}
	}
	return last
}
