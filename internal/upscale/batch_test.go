package upscale

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartition_CoversRangeWithoutGaps(t *testing.T) {
	tests := []struct {
		name       string
		frameCount int
		batchSize  int
		wantCount  int
	}{
		{name: "exact multiple", frameCount: 400, batchSize: 100, wantCount: 4},
		{name: "short last batch", frameCount: 10, batchSize: 4, wantCount: 3},
		{name: "single batch", frameCount: 5, batchSize: 100, wantCount: 1},
		{name: "batch of one", frameCount: 3, batchSize: 1, wantCount: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := Partition(tt.frameCount, tt.batchSize)
			require.Len(t, batches, tt.wantCount)

			next := 0
			for i, b := range batches {
				require.Equal(t, i, b.Index)
				require.Equal(t, next, b.Start, "batches must be contiguous")
				require.Greater(t, b.End, b.Start)
				require.LessOrEqual(t, b.Size(), tt.batchSize)
				require.Equal(t, BatchPending, b.Status)
				next = b.End
			}
			require.Equal(t, tt.frameCount, next, "batches must cover the full range")
		})
	}
}

func TestPartition_TenFramesOfFour(t *testing.T) {
	batches := Partition(10, 4)
	require.Len(t, batches, 3)
	require.Equal(t, 0, batches[0].Start)
	require.Equal(t, 4, batches[0].End)
	require.Equal(t, 4, batches[1].Start)
	require.Equal(t, 8, batches[1].End)
	require.Equal(t, 8, batches[2].Start)
	require.Equal(t, 10, batches[2].End)
}

func TestPartition_DegenerateInputs(t *testing.T) {
	require.Nil(t, Partition(0, 4))
	require.Nil(t, Partition(10, 0))
	require.Nil(t, Partition(-1, 4))
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel(" realesrgan-x4plus ")
	require.NoError(t, err)
	require.Equal(t, ModelX4Plus, m)

	_, err = ParseModel("waifu2x")
	require.Error(t, err)
}

func TestValidScale(t *testing.T) {
	require.True(t, ValidScale(2))
	require.True(t, ValidScale(3))
	require.True(t, ValidScale(4))
	require.False(t, ValidScale(1))
	require.False(t, ValidScale(5))
}
