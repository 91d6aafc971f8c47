package neuro

import (
	"github.com/llamasearchai/llamaneuro/neuro/encoder"
)

// SequenceEncoder is the capability boundary between the pipeline and
// the embedding model. The transformer variant produces an attention
// matrix; the fallback variant flattens the feature matrix and reports
// no attention at all.
type SequenceEncoder interface {
	// Encode maps seq ([positions][features]) to an embedding and an
	// optional square attention matrix. A nil attention matrix means
	// attention is unavailable, not all-zero.
	Encode(seq [][]float64) ([]float64, [][]float64, error)

	// OutputDim reports the embedding length for a sequence of the
	// given number of positions.
	OutputDim(positions int) int
}

type transformerEncoder struct {
	enc *encoder.Encoder
}

func (t *transformerEncoder) Encode(seq [][]float64) ([]float64, [][]float64, error) {
	return t.enc.Encode(seq)
}

func (t *transformerEncoder) OutputDim(int) int {
	return t.enc.Config().HiddenDim
}

// fallbackEncoder stands in when no transformer is available: the
// embedding is the row-major flattened feature matrix.
type fallbackEncoder struct {
	featureDim int
}

func (f *fallbackEncoder) Encode(seq [][]float64) ([]float64, [][]float64, error) {
	flat := make([]float64, 0, len(seq)*f.featureDim)
	for _, row := range seq {
		flat = append(flat, row...)
	}
	return flat, nil, nil
}

func (f *fallbackEncoder) OutputDim(positions int) int {
	return positions * f.featureDim
}
