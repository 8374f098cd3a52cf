// Package timebucket assigns timestamps to canonical calendar periods
// (day, ISO week, month, quarter, year) and produces gap-free bucket
// axes for timeline rendering.
//
// Bucket keys are canonical strings so they can be compared and sorted
// lexicographically within one granularity:
//
//	day      2025-03-07
//	week     2025-W10   (ISO 8601 week)
//	month    2025-03
//	quarter  2025-Q1
//	year     2025
package timebucket

import (
	"errors"
	"fmt"
	"time"
)

// Granularity is the bucket size for a timeline.
type Granularity string

const (
	// Auto selects the coarsest granularity keeping the bucket count in a
	// renderable band. The choice is a pure function of the date range.
	Auto    Granularity = "auto"
	Day     Granularity = "day"
	Week    Granularity = "week"
	Month   Granularity = "month"
	Quarter Granularity = "quarter"
	Year    Granularity = "year"
)

var (
	// ErrInvalidRange indicates start_date > end_date. Requests must be
	// rejected with this before any bucketing happens.
	ErrInvalidRange = errors.New("invalid date range: start after end")

	// ErrUnknownGranularity indicates an unrecognized granularity name.
	ErrUnknownGranularity = errors.New("unknown granularity")
)

// ParseGranularity maps a request string to a Granularity.
// An empty string means Auto.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case "":
		return Auto, nil
	case Auto, Day, Week, Month, Quarter, Year:
		return Granularity(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
	}
}

// ValidateRange checks the request-level range contract.
func ValidateRange(start, end time.Time) error {
	if start.After(end) {
		return fmt.Errorf("%w: %s > %s",
			ErrInvalidRange, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return nil
}

// AutoThresholds are the range limits, per candidate granularity, used by
// auto selection. They are configuration, not constants: dashboards tune
// them for their preferred bucket-count band (roughly 20-90 buckets).
type AutoThresholds struct {
	// MaxDays is the largest range, in days, rendered at day granularity.
	MaxDays int

	// MaxWeeks is the largest range, in ISO weeks, rendered at week
	// granularity.
	MaxWeeks int

	// MaxMonths is the largest range, in calendar months, rendered at
	// month granularity. Anything larger falls back to year buckets.
	MaxMonths int
}

// DefaultAutoThresholds returns the default selection band.
func DefaultAutoThresholds() AutoThresholds {
	return AutoThresholds{MaxDays: 60, MaxWeeks: 26, MaxMonths: 36}
}

// Select resolves the effective granularity for a date range.
//
// Explicit granularities pass through unchanged. Auto picks the coarsest
// granularity whose bucket count stays inside the threshold band, looking
// only at the range endpoints, never at data volume, so the choice is
// deterministic for a fixed request.
func Select(start, end time.Time, g Granularity, th AutoThresholds) (Granularity, error) {
	if err := ValidateRange(start, end); err != nil {
		return "", err
	}
	if g != Auto && g != "" {
		return g, nil
	}

	days := int(end.Sub(start).Hours()/24) + 1
	switch {
	case days <= th.MaxDays:
		return Day, nil
	case days <= th.MaxWeeks*7:
		return Week, nil
	case monthsBetween(start, end) <= th.MaxMonths:
		return Month, nil
	default:
		return Year, nil
	}
}

// PeriodKey returns the canonical bucket key for t under granularity g.
func PeriodKey(t time.Time, g Granularity) string {
	switch g {
	case Day:
		return t.Format("2006-01-02")
	case Week:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case Month:
		return t.Format("2006-01")
	case Quarter:
		q := (int(t.Month())-1)/3 + 1
		return fmt.Sprintf("%04d-Q%d", t.Year(), q)
	case Year:
		return t.Format("2006")
	default:
		// Auto must be resolved via Select before key assignment.
		return t.Format("2006-01-02")
	}
}

// PeriodStart returns the first instant of the bucket containing t.
func PeriodStart(t time.Time, g Granularity) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch g {
	case Day:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case Week:
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		// ISO weeks start on Monday.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case Quarter:
		qm := time.Month((int(m)-1)/3*3 + 1)
		return time.Date(y, qm, 1, 0, 0, 0, 0, loc)
	case Year:
		return time.Date(y, 1, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

// Next returns the start of the bucket following the one containing t.
func Next(t time.Time, g Granularity) time.Time {
	start := PeriodStart(t, g)
	switch g {
	case Day:
		return start.AddDate(0, 0, 1)
	case Week:
		return start.AddDate(0, 0, 7)
	case Month:
		return start.AddDate(0, 1, 0)
	case Quarter:
		return start.AddDate(0, 3, 0)
	case Year:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// Axis returns every bucket key from the bucket containing start through
// the bucket containing end, in order, with no gaps. Timeline series are
// aligned to this axis so empty buckets render as explicit zeros.
func Axis(start, end time.Time, g Granularity) []string {
	if start.After(end) {
		return nil
	}
	var keys []string
	for cur := PeriodStart(start, g); !cur.After(end); cur = Next(cur, g) {
		keys = append(keys, PeriodKey(cur, g))
	}
	return keys
}

func monthsBetween(start, end time.Time) int {
	return (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month()) + 1
}
