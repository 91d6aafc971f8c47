package neuro

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var simElectrodes = []string{"Fp1", "Fp2", "C3", "Cz", "C4"}

func channelPower(chunk [][]float64, idx int) float64 {
	sum := 0.0
	for _, v := range chunk[idx] {
		sum += v * v
	}
	return sum / float64(len(chunk[idx]))
}

func TestSimulatorChunkShape(t *testing.T) {
	sim := NewSimulator(250, simElectrodes, 42)
	chunk := sim.NextChunk(25)
	require.Len(t, chunk, len(simElectrodes))
	for _, row := range chunk {
		assert.Len(t, row, 25)
	}
}

func TestSimulatorLabelInjectionRaisesTargetChannelPower(t *testing.T) {
	baseline := NewSimulator(250, simElectrodes, 42)
	biased := NewSimulator(250, simElectrodes, 42)
	biased.SetTarget("feet", 0.95)

	// Average over several chunks so noise does not dominate.
	var base, boosted float64
	for i := 0; i < 20; i++ {
		base += channelPower(baseline.NextChunk(250), 3) // Cz
		boosted += channelPower(biased.NextChunk(250), 3)
	}
	assert.Greater(t, boosted, base*1.5, "feet target should boost Cz power")
}

func TestSimulatorConfidenceScalesNoise(t *testing.T) {
	confident := NewSimulator(250, simElectrodes, 1)
	confident.SetTarget("rest", 1.0)
	noisy := NewSimulator(250, simElectrodes, 1)
	noisy.SetTarget("rest", 0.0)

	var confidentPower, noisyPower float64
	for i := 0; i < 20; i++ {
		confidentPower += channelPower(confident.NextChunk(250), 0)
		noisyPower += channelPower(noisy.NextChunk(250), 0)
	}
	assert.Greater(t, noisyPower, confidentPower, "low confidence should add noise power")
}

func TestSimulatorTargetClamped(t *testing.T) {
	sim := NewSimulator(250, simElectrodes, 42)
	sim.SetTarget("left_hand", 3.0)
	_, conf := sim.Target()
	assert.Equal(t, 1.0, conf)

	sim.SetTarget("left_hand", -1.0)
	_, conf = sim.Target()
	assert.Equal(t, 0.0, conf)
}

func TestSimulatorMissingElectrodeIsSkipped(t *testing.T) {
	sim := NewSimulator(250, []string{"O1", "O2"}, 42)
	sim.SetTarget("left_hand", 0.9) // C4 not present

	chunk := sim.NextChunk(50)
	for _, row := range chunk {
		for _, v := range row {
			assert.False(t, math.IsNaN(v))
		}
	}
}
