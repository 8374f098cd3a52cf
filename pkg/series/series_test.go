package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfoothills/slurmsight/pkg/accounting"
	"github.com/openfoothills/slurmsight/pkg/grouping"
	"github.com/openfoothills/slurmsight/pkg/timebucket"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func job(id, account string, submit string, cpuHours float64) accounting.JobRecord {
	return accounting.JobRecord{
		JobID:      id,
		Account:    account,
		State:      accounting.StateCompleted,
		SubmitTime: date(submit),
		CPUHours:   cpuHours,
	}
}

func TestBuildTimelineWeekly(t *testing.T) {
	// Worked example: cpu_hours 4+6 in week 1, 2 in week 2.
	records := []accounting.JobRecord{
		job("1", "a", "2025-01-01", 4),
		job("2", "a", "2025-01-01", 6),
		job("3", "a", "2025-01-08", 2),
	}

	tl := BuildTimeline(records, date("2025-01-01"), date("2025-01-08"), timebucket.Week, grouping.MetricCPUHours)

	require.Len(t, tl.Series, 1)
	s := tl.Series[0]
	require.Len(t, s.Points, 2)
	assert.Equal(t, "2025-W01", s.Points[0].Period)
	assert.Equal(t, 10.0, s.Points[0].Value)
	assert.Equal(t, "2025-W02", s.Points[1].Period)
	assert.Equal(t, 2.0, s.Points[1].Value)
	assert.Equal(t, 12.0, s.Total)
	assert.Equal(t, "CPU-hours", s.Unit)
}

func TestBuildTimelineEmitsZeroBuckets(t *testing.T) {
	records := []accounting.JobRecord{
		job("1", "a", "2025-03-01", 1),
		job("2", "a", "2025-03-04", 1),
	}

	tl := BuildTimeline(records, date("2025-03-01"), date("2025-03-05"), timebucket.Day, grouping.MetricJobs)

	s := tl.Series[0]
	require.Len(t, s.Points, 5)
	values := make([]float64, len(s.Points))
	for i, p := range s.Points {
		values[i] = p.Value
	}
	assert.Equal(t, []float64{1, 0, 0, 1, 0}, values)
}

func TestBuildTimelineExcludesOutOfRange(t *testing.T) {
	records := []accounting.JobRecord{
		job("1", "a", "2025-03-01", 1),
		job("2", "a", "2025-02-28", 1), // before range
		job("3", "a", "2025-03-06", 1), // after range
	}

	tl := BuildTimeline(records, date("2025-03-01"), date("2025-03-05"), timebucket.Day, grouping.MetricJobs)
	assert.Equal(t, 1.0, tl.Series[0].Total)
}

func TestBucketingIsAPartition(t *testing.T) {
	records := []accounting.JobRecord{
		job("1", "a", "2025-01-03", 1),
		job("2", "a", "2025-01-17", 1),
		job("3", "a", "2025-02-02", 1),
		job("4", "a", "2025-02-02", 1),
		job("5", "a", "2025-03-30", 1),
	}

	for _, g := range []timebucket.Granularity{timebucket.Day, timebucket.Week, timebucket.Month, timebucket.Quarter, timebucket.Year} {
		tl := BuildTimeline(records, date("2025-01-01"), date("2025-03-31"), g, grouping.MetricJobs)
		assert.Equal(t, 5.0, tl.Series[0].Total, "granularity %s", g)
	}
}

func TestBuildGroupedTimeline(t *testing.T) {
	records := []accounting.JobRecord{
		job("1", "phys", "2025-03-03", 4),
		job("2", "chem", "2025-03-03", 2),
		job("3", "phys", "2025-03-10", 1),
		job("4", "bio", "2025-03-10", 1),
	}

	tl, err := BuildGroupedTimeline(records, date("2025-03-03"), date("2025-03-14"), timebucket.Week, grouping.ByAccount, 2, grouping.MetricJobs)
	require.NoError(t, err)

	require.Len(t, tl.Series, 3) // phys, chem, Other — all aligned
	for _, s := range tl.Series {
		assert.Len(t, s.Points, len(tl.Periods))
	}

	assert.Equal(t, "phys", tl.Series[0].Label)
	assert.Equal(t, []Point{{Period: "2025-W10", Value: 1}, {Period: "2025-W11", Value: 1}}, tl.Series[0].Points)
	assert.Equal(t, grouping.OtherLabel, tl.Series[2].Label)
	assert.Equal(t, 1.0, tl.Series[2].Total)
}

func TestBuildGroupedTimelineUnknownDimension(t *testing.T) {
	_, err := BuildGroupedTimeline(nil, date("2025-01-01"), date("2025-01-02"), timebucket.Day, grouping.Dimension("bogus"), 5, grouping.MetricJobs)
	assert.ErrorIs(t, err, grouping.ErrUnknownDimension)
}

func TestStackedPercent(t *testing.T) {
	records := []accounting.JobRecord{
		job("1", "phys", "2025-03-03", 1),
		job("2", "phys", "2025-03-03", 1),
		job("3", "chem", "2025-03-03", 1),
		job("4", "chem", "2025-03-04", 1),
	}

	tl, err := BuildGroupedTimeline(records, date("2025-03-03"), date("2025-03-05"), timebucket.Day, grouping.ByAccount, 10, grouping.MetricJobs)
	require.NoError(t, err)

	pct := StackedPercent(tl)
	require.Len(t, pct.Series, 2)

	// Day 1: phys 2 of 3, chem 1 of 3.
	var phys, chem Series
	for _, s := range pct.Series {
		switch s.Label {
		case "phys":
			phys = s
		case "chem":
			chem = s
		}
	}
	assert.InDelta(t, 200.0/3, phys.Points[0].Value, 1e-9)
	assert.InDelta(t, 100.0/3, chem.Points[0].Value, 1e-9)

	// Day 2: chem owns the bucket.
	assert.Equal(t, 0.0, phys.Points[1].Value)
	assert.Equal(t, 100.0, chem.Points[1].Value)

	// Day 3 is empty: all-zero, never NaN.
	assert.Equal(t, 0.0, phys.Points[2].Value)
	assert.Equal(t, 0.0, chem.Points[2].Value)

	// Non-empty buckets sum to 100.
	for i := 0; i < 2; i++ {
		assert.InDelta(t, 100.0, phys.Points[i].Value+chem.Points[i].Value, 1e-9)
	}
}

func TestBuildBreakdown(t *testing.T) {
	records := []accounting.JobRecord{
		job("1", "a", "2025-03-03", 8),
		job("2", "b", "2025-03-03", 4),
		job("3", "a", "2025-03-04", 2),
	}

	b, err := BuildBreakdown(records, grouping.ByAccount, 10, grouping.MetricCPUHours)
	require.NoError(t, err)

	assert.Equal(t, 14.0, b.Total)
	require.Len(t, b.Slices, 2)
	assert.Equal(t, Slice{Label: "a", Value: 10, Jobs: 2}, b.Slices[0])
	assert.Equal(t, Slice{Label: "b", Value: 4, Jobs: 1}, b.Slices[1])
}
