package grouping

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfoothills/slurmsight/pkg/accounting"
)

func byAccount(accounts ...string) []accounting.JobRecord {
	records := make([]accounting.JobRecord, len(accounts))
	for i, a := range accounts {
		records[i] = accounting.JobRecord{JobID: string(rune('a' + i)), Account: a}
	}
	return records
}

func TestParseDimension(t *testing.T) {
	for _, s := range []string{"account", "partition", "state", "qos", "user"} {
		d, err := ParseDimension(s)
		require.NoError(t, err)
		assert.Equal(t, Dimension(s), d)
	}

	_, err := ParseDimension("nodename")
	assert.True(t, errors.Is(err, ErrUnknownDimension))
}

func TestPartitionTopNPlusOther(t *testing.T) {
	// accounts = [a a b c], top_n = 1 -> [{a: 2}, {Other: 2}]
	groups, err := Partition(byAccount("a", "a", "b", "c"), ByAccount, 1, ByCount())
	require.NoError(t, err)

	require.Len(t, groups, 2)
	assert.Equal(t, "a", groups[0].Label)
	assert.Equal(t, 2.0, groups[0].Metric)
	assert.Equal(t, OtherLabel, groups[1].Label)
	assert.Equal(t, 2.0, groups[1].Metric)
	assert.Equal(t, 2, groups[1].Jobs)
}

func TestPartitionSumProperty(t *testing.T) {
	records := byAccount("a", "b", "a", "c", "d", "b", "a", "e", "f", "c")

	for topN := 1; topN <= 7; topN++ {
		groups, err := Partition(records, ByAccount, topN, ByCount())
		require.NoError(t, err)

		total := 0.0
		jobs := 0
		for _, g := range groups {
			total += g.Metric
			jobs += g.Jobs
		}
		assert.Equal(t, float64(len(records)), total, "top_n=%d", topN)
		assert.Equal(t, len(records), jobs, "top_n=%d", topN)
	}
}

func TestPartitionTieBreakFirstSeen(t *testing.T) {
	// b and c both have one job; b appears first, so b survives the cut.
	groups, err := Partition(byAccount("a", "a", "b", "c"), ByAccount, 2, ByCount())
	require.NoError(t, err)

	require.Len(t, groups, 3)
	assert.Equal(t, "a", groups[0].Label)
	assert.Equal(t, "b", groups[1].Label)
	assert.Equal(t, OtherLabel, groups[2].Label)
}

func TestPartitionNoOtherWhenUnderTopN(t *testing.T) {
	groups, err := Partition(byAccount("a", "b"), ByAccount, 5, ByCount())
	require.NoError(t, err)

	require.Len(t, groups, 2)
	for _, g := range groups {
		assert.NotEqual(t, OtherLabel, g.Label)
	}
}

func TestPartitionByMetric(t *testing.T) {
	records := []accounting.JobRecord{
		{JobID: "1", Partition: "cpu", CPUHours: 10},
		{JobID: "2", Partition: "gpu", CPUHours: 100},
		{JobID: "3", Partition: "cpu", CPUHours: 5},
	}

	groups, err := Partition(records, ByPartition, 10, ByMetric(MetricCPUHours))
	require.NoError(t, err)

	require.Len(t, groups, 2)
	assert.Equal(t, "gpu", groups[0].Label)
	assert.Equal(t, 100.0, groups[0].Metric)
	assert.Equal(t, "cpu", groups[1].Label)
	assert.Equal(t, 15.0, groups[1].Metric)
}

func TestPartitionUnsetLabel(t *testing.T) {
	records := []accounting.JobRecord{
		{JobID: "1", Account: "phys"},
		{JobID: "2"}, // no account
		{JobID: "3"},
	}

	groups, err := Partition(records, ByAccount, 10, ByCount())
	require.NoError(t, err)

	require.Len(t, groups, 2)
	assert.Equal(t, UnsetLabel, groups[0].Label)
	assert.Equal(t, 2, groups[0].Jobs)
}

func TestPartitionCaseSensitive(t *testing.T) {
	groups, err := Partition(byAccount("Chem", "chem"), ByAccount, 10, ByCount())
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

func TestPartitionEmptyInput(t *testing.T) {
	groups, err := Partition(nil, ByAccount, 10, ByCount())
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestPartitionUnknownDimension(t *testing.T) {
	_, err := Partition(byAccount("a"), Dimension("cluster"), 10, ByCount())
	assert.True(t, errors.Is(err, ErrUnknownDimension))
}

func TestValue(t *testing.T) {
	r := accounting.JobRecord{User: "alice", Account: "phys", Partition: "gpu", QOS: "high", State: accounting.StateCompleted}

	assert.Equal(t, "alice", Value(ByUser, &r))
	assert.Equal(t, "phys", Value(ByAccount, &r))
	assert.Equal(t, "gpu", Value(ByPartition, &r))
	assert.Equal(t, "high", Value(ByQOS, &r))
	assert.Equal(t, "COMPLETED", Value(ByState, &r))

	empty := accounting.JobRecord{}
	assert.Equal(t, UnsetLabel, Value(ByQOS, &empty))
}
