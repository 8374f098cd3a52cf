// Package stats is the single statistical summarizer for the analytics
// engine. Every percentile, median, or mean reported anywhere in the
// system routes through this package so the interpolation method cannot
// drift between call sites.
package stats

import (
	"math"
	"sort"
)

// ReportedPercentiles are the percentile levels carried on every Summary.
var ReportedPercentiles = []float64{5, 25, 75, 90, 95, 99}

// Summary holds the descriptive statistics for one numeric sequence.
//
// A Summary with Count == 0 is the "no data" sentinel: it means no
// values were observed, which is distinct from observing zeros. Callers
// must check HasData before reading the numeric fields.
type Summary struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`

	Median float64 `json:"median"`
	P05    float64 `json:"p05"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// HasData reports whether the summary was computed from at least one value.
func (s Summary) HasData() bool {
	return s.Count > 0
}

// Summarize computes the full summary for values.
//
// The input slice is not modified. Empty input returns the zero Summary
// (the "no data" sentinel), never an error.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	s := Summary{
		Count: len(sorted),
		Sum:   sum,
		Mean:  sum / float64(len(sorted)),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
	}

	s.Median = percentileSorted(sorted, 50)
	s.P05 = percentileSorted(sorted, 5)
	s.P25 = percentileSorted(sorted, 25)
	s.P75 = percentileSorted(sorted, 75)
	s.P90 = percentileSorted(sorted, 90)
	s.P95 = percentileSorted(sorted, 95)
	s.P99 = percentileSorted(sorted, 99)

	return s
}

// Percentile computes the p-th percentile (0 <= p <= 100) of values using
// linear interpolation between order statistics:
//
//	rank = p/100 × (n-1)
//
// with the result interpolated between the two neighboring sorted values.
// This is the standard "linear" method and is part of the reported-data
// contract: results must be reproducible bit-for-bit.
//
// The second return is false for empty input or p outside [0, 100].
func Percentile(values []float64, p float64) (float64, bool) {
	if len(values) == 0 || p < 0 || p > 100 {
		return 0, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p), true
}

// Median computes the 50th percentile of values. It is defined to agree
// exactly with Percentile(values, 50).
func Median(values []float64) (float64, bool) {
	return Percentile(values, 50)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
