// Package report implements calendar-aligned report periods and the
// period-over-period comparator behind usage reports.
package report

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// PeriodType is the calendar unit of a report period.
type PeriodType string

const (
	Monthly   PeriodType = "month"
	Quarterly PeriodType = "quarter"
	Yearly    PeriodType = "year"
)

var (
	// ErrInvalidPeriod indicates an unparseable period spec.
	ErrInvalidPeriod = errors.New("invalid report period")

	// ErrIncompletePeriod indicates the period has not fully elapsed.
	// Comparing a partial period would bias the delta, so generation is
	// rejected up front.
	ErrIncompletePeriod = errors.New("report period has not fully elapsed")
)

// Period is one calendar-aligned report span. Start and End are
// inclusive dates (midnight-anchored).
type Period struct {
	Type  PeriodType `json:"type"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

var (
	monthRe   = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	quarterRe = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)
	yearRe    = regexp.MustCompile(`^(\d{4})$`)
)

// ParsePeriod parses a canonical period spec: "2025-03" (month),
// "2025-Q1" (quarter), or "2025" (year).
func ParsePeriod(spec string) (Period, error) {
	if m := monthRe.FindStringSubmatch(spec); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, spec)
		}
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return Period{Type: Monthly, Start: start, End: start.AddDate(0, 1, -1)}, nil
	}
	if m := quarterRe.FindStringSubmatch(spec); m != nil {
		year, _ := strconv.Atoi(m[1])
		q, _ := strconv.Atoi(m[2])
		start := time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		return Period{Type: Quarterly, Start: start, End: start.AddDate(0, 3, -1)}, nil
	}
	if m := yearRe.FindStringSubmatch(spec); m != nil {
		year, _ := strconv.Atoi(m[1])
		start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		return Period{Type: Yearly, Start: start, End: start.AddDate(1, 0, -1)}, nil
	}
	return Period{}, fmt.Errorf("%w: %q (want YYYY-MM, YYYY-Qn, or YYYY)", ErrInvalidPeriod, spec)
}

// Label returns the canonical spec string for the period.
func (p Period) Label() string {
	switch p.Type {
	case Monthly:
		return p.Start.Format("2006-01")
	case Quarterly:
		q := (int(p.Start.Month())-1)/3 + 1
		return fmt.Sprintf("%04d-Q%d", p.Start.Year(), q)
	default:
		return p.Start.Format("2006")
	}
}

// Previous returns the immediately preceding period of identical type:
// the previous calendar month, quarter, or year. It is never a rolling
// window.
func (p Period) Previous() Period {
	var start time.Time
	switch p.Type {
	case Monthly:
		start = p.Start.AddDate(0, -1, 0)
		return Period{Type: Monthly, Start: start, End: start.AddDate(0, 1, -1)}
	case Quarterly:
		start = p.Start.AddDate(0, -3, 0)
		return Period{Type: Quarterly, Start: start, End: start.AddDate(0, 3, -1)}
	default:
		start = p.Start.AddDate(-1, 0, 0)
		return Period{Type: Yearly, Start: start, End: start.AddDate(1, 0, -1)}
	}
}

// Complete reports whether the period has fully elapsed as of now.
func (p Period) Complete(now time.Time) bool {
	// The period ends at the end of its last day.
	return !p.End.AddDate(0, 0, 1).After(now)
}

// Validate rejects incomplete periods with ErrIncompletePeriod.
func (p Period) Validate(now time.Time) error {
	if !p.Complete(now) {
		return fmt.Errorf("%w: %s ends %s", ErrIncompletePeriod, p.Label(), p.End.Format("2006-01-02"))
	}
	return nil
}
