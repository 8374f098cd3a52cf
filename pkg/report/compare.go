package report

import (
	"github.com/openfoothills/slurmsight/pkg/accounting"
)

// Totals are the top-level metrics a report compares period over period.
type Totals struct {
	Jobs        int     `json:"jobs"`
	CPUHours    float64 `json:"cpu_hours"`
	GPUHours    float64 `json:"gpu_hours"`
	ActiveUsers int     `json:"active_users"`
}

// TotalsOf computes report totals over a record set. Every record counts
// toward jobs, regardless of state.
func TotalsOf(records []accounting.JobRecord) Totals {
	t := Totals{Jobs: len(records)}
	users := make(map[string]struct{})
	for i := range records {
		t.CPUHours += records[i].CPUHours
		t.GPUHours += records[i].GPUHours
		if records[i].User != "" {
			users[records[i].User] = struct{}{}
		}
	}
	t.ActiveUsers = len(users)
	return t
}

// Delta is a period-over-period change for one metric.
//
// When the previous value is zero and the current is not, the change is
// undefined: New is true and PctChange stays zero. The sentinel keeps
// Inf/NaN out of serialized output. Zero to zero is reported as a 0%
// change.
type Delta struct {
	Current   float64 `json:"current"`
	Previous  float64 `json:"previous"`
	PctChange float64 `json:"pct_change"`
	New       bool    `json:"new,omitempty"`
}

func newDelta(current, previous float64) Delta {
	d := Delta{Current: current, Previous: previous}
	switch {
	case previous == 0 && current == 0:
		// pct_change stays 0.
	case previous == 0:
		d.New = true
	default:
		d.PctChange = 100 * (current - previous) / previous
	}
	return d
}

// Comparison is the full period-over-period result.
type Comparison struct {
	Period         string `json:"period"`
	PreviousPeriod string `json:"previous_period"`

	Jobs        Delta `json:"jobs"`
	CPUHours    Delta `json:"cpu_hours"`
	GPUHours    Delta `json:"gpu_hours"`
	ActiveUsers Delta `json:"active_users"`
}

// Compare produces the deltas between a period's totals and the
// preceding period's totals.
func Compare(p Period, current, previous Totals) Comparison {
	return Comparison{
		Period:         p.Label(),
		PreviousPeriod: p.Previous().Label(),
		Jobs:           newDelta(float64(current.Jobs), float64(previous.Jobs)),
		CPUHours:       newDelta(current.CPUHours, previous.CPUHours),
		GPUHours:       newDelta(current.GPUHours, previous.GPUHours),
		ActiveUsers:    newDelta(float64(current.ActiveUsers), float64(previous.ActiveUsers)),
	}
}
