package timebucket

import (
	"errors"
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPeriodKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		g    Granularity
		want string
	}{
		{name: "day", in: "2025-03-07", g: Day, want: "2025-03-07"},
		{name: "month", in: "2025-03-07", g: Month, want: "2025-03"},
		{name: "quarter q1", in: "2025-03-31", g: Quarter, want: "2025-Q1"},
		{name: "quarter q4", in: "2025-10-01", g: Quarter, want: "2025-Q4"},
		{name: "year", in: "2025-03-07", g: Year, want: "2025"},
		{name: "iso week 1", in: "2025-01-01", g: Week, want: "2025-W01"},
		{name: "iso week 2", in: "2025-01-08", g: Week, want: "2025-W02"},
		// 2024-12-30 is a Monday and belongs to ISO week 1 of 2025.
		{name: "iso week year rollover", in: "2024-12-30", g: Week, want: "2025-W01"},
		// 2027-01-01 is a Friday and belongs to ISO week 53 of 2026.
		{name: "iso week backward rollover", in: "2027-01-01", g: Week, want: "2026-W53"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeriodKey(date(tt.in), tt.g); got != tt.want {
				t.Errorf("PeriodKey(%s, %s) = %q, want %q", tt.in, tt.g, got, tt.want)
			}
		})
	}
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("")
	if err != nil || g != Auto {
		t.Fatalf("ParseGranularity(\"\") = %v, %v; want auto", g, err)
	}
	if _, err := ParseGranularity("fortnight"); !errors.Is(err, ErrUnknownGranularity) {
		t.Fatalf("ParseGranularity(fortnight) err = %v, want ErrUnknownGranularity", err)
	}
}

func TestSelectAuto(t *testing.T) {
	th := DefaultAutoThresholds()

	tests := []struct {
		name       string
		start, end string
		want       Granularity
	}{
		{name: "short range uses days", start: "2025-03-01", end: "2025-03-31", want: Day},
		{name: "sixty days still daily", start: "2025-01-01", end: "2025-03-01", want: Day},
		{name: "half year uses weeks", start: "2025-01-01", end: "2025-06-30", want: Week},
		{name: "two years uses months", start: "2024-01-01", end: "2025-12-31", want: Month},
		{name: "five years uses years", start: "2021-01-01", end: "2025-12-31", want: Year},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(date(tt.start), date(tt.end), Auto, th)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if got != tt.want {
				t.Errorf("Select(%s..%s) = %s, want %s", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestSelectExplicitPassthrough(t *testing.T) {
	got, err := Select(date("2020-01-01"), date("2025-12-31"), Day, DefaultAutoThresholds())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != Day {
		t.Errorf("explicit granularity overridden: got %s", got)
	}
}

func TestSelectInvalidRange(t *testing.T) {
	_, err := Select(date("2025-03-02"), date("2025-03-01"), Auto, DefaultAutoThresholds())
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("Select err = %v, want ErrInvalidRange", err)
	}
}

func TestAxisGapFree(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		g          Granularity
		want       []string
	}{
		{
			name:  "weeks across january",
			start: "2025-01-01", end: "2025-01-15", g: Week,
			want: []string{"2025-W01", "2025-W02", "2025-W03"},
		},
		{
			name:  "months across year boundary",
			start: "2024-11-05", end: "2025-02-20", g: Month,
			want: []string{"2024-11", "2024-12", "2025-01", "2025-02"},
		},
		{
			name:  "quarters",
			start: "2024-10-01", end: "2025-05-31", g: Quarter,
			want: []string{"2024-Q4", "2025-Q1", "2025-Q2"},
		},
		{
			name:  "single day",
			start: "2025-03-07", end: "2025-03-07", g: Day,
			want: []string{"2025-03-07"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Axis(date(tt.start), date(tt.end), tt.g)
			if len(got) != len(tt.want) {
				t.Fatalf("Axis = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Axis = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestAxisCoversEveryDay(t *testing.T) {
	start, end := date("2025-02-20"), date("2025-04-10")
	axis := Axis(start, end, Day)

	if len(axis) != 50 {
		t.Fatalf("Axis length = %d, want 50", len(axis))
	}

	// Every day in the range maps onto a key present in the axis.
	have := make(map[string]bool, len(axis))
	for _, k := range axis {
		have[k] = true
	}
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, 1) {
		if !have[PeriodKey(cur, Day)] {
			t.Fatalf("axis missing key %s", PeriodKey(cur, Day))
		}
	}
}
