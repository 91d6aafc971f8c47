package neuro

import (
	"time"
)

// Classification is one published pipeline result. The probability map
// is always a valid distribution over the class set that produced it;
// label and confidence always refer to the same distribution.
type Classification struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	Timestamp     time.Time          `json:"timestamp"`
}

// Snapshot is the atomically published view of the pipeline. A new
// Snapshot replaces the previous one wholesale on every tick; readers
// get a consistent bundle and must treat it as immutable. Attention is
// nil (and absent from JSON) when the pipeline runs in fallback mode
// without an encoder.
type Snapshot struct {
	Active       bool      `json:"active"`
	State        string    `json:"state"`
	Simulated    bool      `json:"simulated"`
	SamplingRate int       `json:"sampling_rate"`
	Electrodes   []string  `json:"electrodes"`
	Classes      []string  `json:"classes"`
	LastUpdate   time.Time `json:"last_update"`

	Classification *Classification      `json:"classification,omitempty"`
	BandPowers     map[string][]float64 `json:"band_powers,omitempty"`
	Attention      [][]float64          `json:"attention,omitempty"`

	TickCount  uint64 `json:"tick_count"`
	ErrorCount int    `json:"error_count"`
	LastError  string `json:"last_error,omitempty"`
}

// NeuralGuidance is the projection handed to the text-generation
// collaborator: the latest label, its confidence, and the encoder's
// attention matrix when one exists.
type NeuralGuidance struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	Attention  [][]float64 `json:"attention_matrix,omitempty"`
}
