package classifier

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamasearchai/llamaneuro/errors"
)

func testConfig() Config {
	return Config{
		InputDim:  16,
		HiddenDim: 32,
		Classes:   []string{"left_hand", "right_hand", "feet", "tongue", "rest"},
		Seed:      42,
	}
}

func testEmbedding(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = math.Cos(float64(i)) * 0.3
	}
	return v
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{InputDim: 0, HiddenDim: 32, Classes: []string{"a", "b"}})
	assert.True(t, errors.IsInvalid(err))

	_, err = New(Config{InputDim: 16, HiddenDim: 32, Classes: []string{"only"}})
	assert.True(t, errors.IsInvalid(err))
}

func TestProbabilitiesFormValidDistribution(t *testing.T) {
	clf, err := New(testConfig())
	require.NoError(t, err)

	probs, err := clf.Probabilities(testEmbedding(16))
	require.NoError(t, err)
	require.Len(t, probs, 5)

	sum := 0.0
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestClassifyReturnsArgmax(t *testing.T) {
	clf, err := New(testConfig())
	require.NoError(t, err)

	res, err := clf.Classify(testEmbedding(16))
	require.NoError(t, err)

	best := 0
	for i, p := range res.Probabilities {
		if p > res.Probabilities[best] {
			best = i
		}
	}
	assert.Equal(t, clf.Classes()[best], res.Label)
	assert.Equal(t, res.Probabilities[best], res.Confidence)
}

func TestShapeMismatchFailsFast(t *testing.T) {
	clf, err := New(testConfig())
	require.NoError(t, err)

	_, err = clf.Probabilities(testEmbedding(10))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)
}

func TestDeterministicBySeed(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	b, err := New(testConfig())
	require.NoError(t, err)

	pa, err := a.Probabilities(testEmbedding(16))
	require.NoError(t, err)
	pb, err := b.Probabilities(testEmbedding(16))
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestWeightFileRoundTrip(t *testing.T) {
	cfg := testConfig()
	src, err := New(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "classifier.json")
	data, err := json.Marshal(src.ExportWeights())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg.Seed = 99
	cfg.WeightsPath = path
	loaded, err := New(cfg)
	require.NoError(t, err)

	want, err := src.Probabilities(testEmbedding(16))
	require.NoError(t, err)
	got, err := loaded.Probabilities(testEmbedding(16))
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)
}

func TestMalformedWeightFileFailsConstruction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("[1,2"), 0o644))

	cfg := testConfig()
	cfg.WeightsPath = path
	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMalformedWeight)
}
