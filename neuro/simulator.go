package neuro

import (
	"math"
	"math/rand"
)

// Simulator synthesizes EEG-like chunks standing in for hardware
// acquisition. Every channel carries a 10 Hz alpha baseline over noise;
// a target label adds class-specific activity on its motor or frontal
// electrodes, with injected noise scaling inversely with the target
// confidence so low-confidence targets look ambiguous.
type Simulator struct {
	rng        *rand.Rand
	rate       int
	electrodes []string

	label      string
	confidence float64
}

// NewSimulator creates a simulator biased toward no label ("rest"-like
// output) until SetTarget is called. The simulator is not safe for
// concurrent use; the processor loop owns it.
func NewSimulator(samplingRate int, electrodes []string, seed int64) *Simulator {
	return &Simulator{
		rng:        rand.New(rand.NewSource(seed)),
		rate:       samplingRate,
		electrodes: append([]string(nil), electrodes...),
		confidence: 0.7,
	}
}

// SetTarget selects the class the synthetic signal should express.
// Confidence is clamped to [0, 1].
func (s *Simulator) SetTarget(label string, confidence float64) {
	s.label = label
	s.confidence = math.Max(0, math.Min(1, confidence))
}

// Target returns the current label and confidence.
func (s *Simulator) Target() (string, float64) {
	return s.label, s.confidence
}

func (s *Simulator) electrodeIndex(name string) (int, bool) {
	for i, e := range s.electrodes {
		if e == name {
			return i, true
		}
	}
	return 0, false
}

// NextChunk synthesizes a [channels][samples] chunk.
func (s *Simulator) NextChunk(samples int) [][]float64 {
	channels := len(s.electrodes)
	chunk := make([][]float64, channels)
	for ch := range chunk {
		chunk[ch] = make([]float64, samples)
	}

	// Base noise plus the alpha baseline on every channel.
	const alphaFreq, alphaAmp = 10.0, 1.0
	for ch := 0; ch < channels; ch++ {
		for i := 0; i < samples; i++ {
			t := float64(i) / float64(s.rate)
			chunk[ch][i] = s.rng.NormFloat64()*0.5 + alphaAmp*math.Sin(2*math.Pi*alphaFreq*t)
		}
	}

	switch s.label {
	case "left_hand":
		// Mu suppression over the right motor cortex with a beta burst.
		s.suppressAndBurst(chunk, samples, "C4", 20.0, 1.5)
	case "right_hand":
		s.suppressAndBurst(chunk, samples, "C3", 20.0, 1.5)
	case "feet":
		s.inject(chunk, samples, "Cz", 18.0, 2.0)
	case "tongue":
		s.inject(chunk, samples, "Fp1", 35.0, 0.8)
		s.inject(chunk, samples, "Fp2", 35.0, 0.8)
	}

	// Slow drift across the chunk plus confidence-scaled noise.
	noiseLevel := 1.0 - s.confidence
	for ch := 0; ch < channels; ch++ {
		for i := 0; i < samples; i++ {
			drift := 0.0
			if samples > 1 {
				drift = 0.2 * float64(i) / float64(samples-1)
			}
			chunk[ch][i] += drift + s.rng.NormFloat64()*noiseLevel
		}
	}

	return chunk
}

func (s *Simulator) suppressAndBurst(chunk [][]float64, samples int, electrode string, freq, amp float64) {
	idx, ok := s.electrodeIndex(electrode)
	if !ok {
		return
	}
	for i := 0; i < samples; i++ {
		t := float64(i) / float64(s.rate)
		chunk[idx][i] = chunk[idx][i]*0.5 + amp*math.Sin(2*math.Pi*freq*t)
	}
}

func (s *Simulator) inject(chunk [][]float64, samples int, electrode string, freq, amp float64) {
	idx, ok := s.electrodeIndex(electrode)
	if !ok {
		return
	}
	for i := 0; i < samples; i++ {
		t := float64(i) / float64(s.rate)
		chunk[idx][i] += amp * math.Sin(2*math.Pi*freq*t)
	}
}
