package neuro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamasearchai/llamaneuro/errors"
)

func chunkOf(channels, samples int, value float64) [][]float64 {
	chunk := make([][]float64, channels)
	for ch := range chunk {
		chunk[ch] = make([]float64, samples)
		for i := range chunk[ch] {
			chunk[ch][i] = value
		}
	}
	return chunk
}

func TestSignalBufferShiftInvariant(t *testing.T) {
	sb, err := NewSignalBuffer(3, 10)
	require.NoError(t, err)

	// After every push the window keeps its length and its trailing
	// columns equal the latest chunk.
	for round := 1; round <= 5; round++ {
		chunk := chunkOf(3, 4, float64(round))
		require.NoError(t, sb.Push(chunk))

		data := sb.Data()
		require.Len(t, data, 3)
		for ch := range data {
			require.Len(t, data[ch], 10)
			for i := 6; i < 10; i++ {
				assert.Equal(t, float64(round), data[ch][i])
			}
		}
	}

	// The head of the window now holds the previous chunk's samples.
	data := sb.Data()
	assert.Equal(t, 4.0, data[0][2])
	assert.Equal(t, 5.0, data[0][6])
}

func TestSignalBufferOversizedChunkKeepsTail(t *testing.T) {
	sb, err := NewSignalBuffer(1, 4)
	require.NoError(t, err)

	chunk := [][]float64{{1, 2, 3, 4, 5, 6}}
	require.NoError(t, sb.Push(chunk))
	assert.Equal(t, []float64{3, 4, 5, 6}, sb.Data()[0])
}

func TestSignalBufferRejectsBadChunks(t *testing.T) {
	sb, err := NewSignalBuffer(2, 8)
	require.NoError(t, err)

	err = sb.Push(chunkOf(3, 4, 1))
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)

	err = sb.Push([][]float64{{1, 2}, {1}})
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)

	err = sb.Push([][]float64{{}, {}})
	assert.ErrorIs(t, err, errors.ErrEmptyWindow)
}

func TestSignalBufferReallocateZeroFills(t *testing.T) {
	sb, err := NewSignalBuffer(2, 6)
	require.NoError(t, err)
	require.NoError(t, sb.Push(chunkOf(2, 6, 7)))

	require.NoError(t, sb.Reallocate(4, 3))
	assert.Equal(t, 4, sb.Channels())
	assert.Equal(t, 3, sb.Samples())
	for _, row := range sb.Data() {
		for _, v := range row {
			assert.Zero(t, v)
		}
	}
}

func TestSignalBufferZero(t *testing.T) {
	sb, err := NewSignalBuffer(2, 4)
	require.NoError(t, err)
	require.NoError(t, sb.Push(chunkOf(2, 4, 9)))

	sb.Zero()
	for _, row := range sb.Data() {
		for _, v := range row {
			assert.Zero(t, v)
		}
	}
}

func TestSignalBufferDataIsACopy(t *testing.T) {
	sb, err := NewSignalBuffer(1, 3)
	require.NoError(t, err)

	data := sb.Data()
	data[0][0] = 42
	assert.Zero(t, sb.Data()[0][0])
}
