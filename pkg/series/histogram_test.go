package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHistogramFixedWidth(t *testing.T) {
	values := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 10}

	h := BuildHistogram("duration", "hours", values, 5, BinFixedWidth)

	assert.Equal(t, 10, h.Count)
	require.Len(t, h.Bins, 5)

	// Edges derive from observed min/max: [0,2) [2,4) [4,6) [6,8) [8,10].
	assert.Equal(t, 0.0, h.Bins[0].Low)
	assert.Equal(t, 10.0, h.Bins[4].High)
	assert.Equal(t, 2, h.Bins[0].Count) // 0, 1
	assert.Equal(t, 2, h.Bins[1].Count) // 2, 3
	assert.Equal(t, 2, h.Bins[2].Count) // 4, 5
	assert.Equal(t, 2, h.Bins[3].Count) // 6, 7
	assert.Equal(t, 2, h.Bins[4].Count) // 8 and max 10 in closed last bin

	total := 0
	for _, b := range h.Bins {
		total += b.Count
	}
	assert.Equal(t, len(values), total, "binning must not lose values")
}

func TestBuildHistogramDeterministicEdges(t *testing.T) {
	values := []float64{3, 9, 6}

	a := BuildHistogram("wait", "hours", values, 4, BinFixedWidth)
	b := BuildHistogram("wait", "hours", []float64{9, 3, 6}, 4, BinFixedWidth)

	assert.Equal(t, a.Bins, b.Bins, "edges depend on observed min/max, not input order")
}

func TestBuildHistogramQuantile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8}

	h := BuildHistogram("duration", "hours", values, 4, BinQuantile)

	require.Len(t, h.Bins, 4)
	total := 0
	for _, b := range h.Bins {
		total += b.Count
	}
	assert.Equal(t, len(values), total)
	assert.Equal(t, 1.0, h.Bins[0].Low)
	assert.Equal(t, 8.0, h.Bins[3].High)
}

func TestBuildHistogramDegenerate(t *testing.T) {
	h := BuildHistogram("duration", "hours", []float64{5, 5, 5}, 10, BinFixedWidth)

	require.Len(t, h.Bins, 1)
	assert.Equal(t, HistogramBin{Low: 5, High: 5, Count: 3}, h.Bins[0])
}

func TestBuildHistogramNoData(t *testing.T) {
	h := BuildHistogram("duration", "hours", nil, 10, BinFixedWidth)

	assert.Equal(t, 0, h.Count)
	assert.Empty(t, h.Bins)
	assert.False(t, h.Summary.HasData())
}

func TestParseBinMode(t *testing.T) {
	tests := []struct {
		input   string
		want    BinMode
		wantErr bool
	}{
		{input: "", want: BinFixedWidth},
		{input: "fixed", want: BinFixedWidth},
		{input: "quantile", want: BinQuantile},
		{input: "logarithmic", wantErr: true},
		{input: "Fixed", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("input_"+tt.input, func(t *testing.T) {
			mode, err := ParseBinMode(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownBinMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, mode)
		})
	}
}
