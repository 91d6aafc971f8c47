package features

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineChannel(freq, fs float64, n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/fs)
	}
	return out
}

func noisyChannel(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

var defaultBands = map[string][2]float64{
	"delta": {0.5, 4},
	"theta": {4, 8},
	"alpha": {8, 13},
	"beta":  {13, 30},
	"gamma": {30, 100},
}

func TestTemporalBasicStats(t *testing.T) {
	data := [][]float64{
		{1, 2, 3, 4, 5},
		{2, 2, 2, 2, 2},
	}

	set, err := Temporal(data)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, set["mean"][0], 1e-9)
	assert.InDelta(t, 4.0, set["ptp"][0], 1e-9)
	assert.InDelta(t, math.Sqrt(2.0), set["std"][0], 1e-9)
	assert.InDelta(t, 2.0, set["hjorth_activity"][0], 1e-9)

	assert.InDelta(t, 2.0, set["mean"][1], 1e-9)
	assert.InDelta(t, 0.0, set["std"][1], 1e-9)
	assert.InDelta(t, 0.0, set["ptp"][1], 1e-9)
}

func TestTemporalConstantChannelSentinels(t *testing.T) {
	data := [][]float64{make([]float64, 500)}
	for i := range data[0] {
		data[0][i] = 7.5
	}

	set, err := Temporal(data)
	require.NoError(t, err)

	// Zero-variance channels report sentinel 0, never NaN or Inf.
	for _, name := range []string{"kurtosis", "hjorth_mobility", "hjorth_complexity"} {
		v := set[name][0]
		assert.False(t, math.IsNaN(v), "%s must not be NaN", name)
		assert.False(t, math.IsInf(v, 0), "%s must not be Inf", name)
		assert.Equal(t, 0.0, v, name)
	}
}

func TestTemporalHjorthOfSine(t *testing.T) {
	// For a pure sinusoid at frequency f, mobility approximates the
	// angular step 2*pi*f/fs and complexity approaches 1.
	const fs = 250.0
	data := [][]float64{sineChannel(10, fs, 1000, 1.0)}

	set, err := Temporal(data)
	require.NoError(t, err)

	expected := 2 * math.Pi * 10 / fs
	assert.InDelta(t, expected, set["hjorth_mobility"][0], expected*0.05)
	assert.InDelta(t, 1.0, set["hjorth_complexity"][0], 0.05)
}

func TestBandPowersAlphaDominance(t *testing.T) {
	const fs = 250
	data := [][]float64{
		sineChannel(10, fs, 1000, 2.0), // alpha
		sineChannel(20, fs, 1000, 2.0), // beta
	}

	set, err := BandPowers(data, fs, defaultBands)
	require.NoError(t, err)

	assert.Greater(t, set["alpha"][0], set["beta"][0])
	assert.Greater(t, set["beta"][1], set["alpha"][1])
}

func TestBandPowersEmptyBandIsZero(t *testing.T) {
	const fs = 250
	data := [][]float64{sineChannel(10, fs, 500, 1.0)}

	set, err := BandPowers(data, fs, map[string][2]float64{
		"beyond_nyquist": {200, 300},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, set["beyond_nyquist"])
}

func TestConnectivityCorrelation(t *testing.T) {
	const fs = 250
	base := sineChannel(10, fs, 1000, 1.0)
	inverted := make([]float64, len(base))
	for i, v := range base {
		inverted[i] = -v
	}
	data := [][]float64{base, base, inverted}

	matrix, err := Connectivity(data, fs, "correlation", [2]float64{8, 13})
	require.NoError(t, err)

	require.Len(t, matrix, 3)
	assert.InDelta(t, 1.0, matrix[0][1], 1e-6)
	assert.InDelta(t, -1.0, matrix[0][2], 1e-6)
	assert.InDelta(t, 1.0, matrix[0][0], 1e-9)
	assert.Equal(t, matrix[1][2], matrix[2][1], "matrix must be symmetric")
}

func TestConnectivityCoherenceIsNonNegative(t *testing.T) {
	const fs = 250
	rng := rand.New(rand.NewSource(1))
	data := [][]float64{
		noisyChannel(rng, 1000),
		noisyChannel(rng, 1000),
	}

	matrix, err := Connectivity(data, fs, "coherence", [2]float64{8, 13})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, matrix[0][1], 0.0)
	assert.LessOrEqual(t, matrix[0][1], 1.0)
}

func TestFlattenUpperTriangle(t *testing.T) {
	matrix := [][]float64{
		{1, 2, 3},
		{2, 1, 4},
		{3, 4, 1},
	}
	assert.Equal(t, []float64{2, 3, 4}, FlattenUpperTriangle(matrix))
}

func TestExtractAllGroups(t *testing.T) {
	const fs = 250
	rng := rand.New(rand.NewSource(7))
	data := [][]float64{
		noisyChannel(rng, 1000),
		noisyChannel(rng, 1000),
		noisyChannel(rng, 1000),
	}

	set, err := Extract(data, Options{
		SamplingRate:       fs,
		FrequencyBands:     defaultBands,
		Temporal:           true,
		Spectral:           true,
		Connectivity:       true,
		ConnectivityMethod: "correlation",
	})
	require.NoError(t, err)

	for _, name := range []string{"mean", "std", "ptp", "kurtosis",
		"hjorth_activity", "hjorth_mobility", "hjorth_complexity"} {
		assert.Len(t, set[name], 3, name)
	}
	for band := range defaultBands {
		assert.Len(t, set["band_"+band], 3)
		// 3 channels -> 3 unique pairs.
		assert.Len(t, set["conn_"+band], 3)
	}
}

func TestExtractRejectsBadShapes(t *testing.T) {
	_, err := Extract(nil, Options{Temporal: true})
	assert.Error(t, err)

	_, err = Extract([][]float64{{}}, Options{Temporal: true})
	assert.Error(t, err)

	_, err = Extract([][]float64{{1, 2, 3}, {1, 2}}, Options{Temporal: true})
	assert.Error(t, err)
}
