package nn

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/llamasearchai/llamaneuro/errors"
)

// LinearWeights is the JSON form of a Linear layer.
type LinearWeights struct {
	Weight [][]float64 `json:"weight"` // [out][in]
	Bias   []float64   `json:"bias"`
}

// LayerNormWeights is the JSON form of a LayerNorm.
type LayerNormWeights struct {
	Gamma []float64 `json:"gamma"`
	Beta  []float64 `json:"beta"`
}

// Export returns the layer's weights in serializable form.
func (l *Linear) Export() LinearWeights {
	out, in := l.W.Dims()
	w := make([][]float64, out)
	for i := 0; i < out; i++ {
		w[i] = make([]float64, in)
		copy(w[i], l.W.RawRowView(i))
	}
	b := make([]float64, len(l.B))
	copy(b, l.B)
	return LinearWeights{Weight: w, Bias: b}
}

// Load replaces the layer's parameters, rejecting mismatched shapes.
func (l *Linear) Load(w LinearWeights) error {
	out, in := l.W.Dims()
	if len(w.Weight) != out || len(w.Bias) != out {
		return errors.WrapInvalid(
			fmt.Errorf("%w: expected %d output rows, got %d weight rows and %d biases",
				errors.ErrMalformedWeight, out, len(w.Weight), len(w.Bias)),
			"Linear", "Load", "shape check")
	}

	data := make([]float64, 0, out*in)
	for i, row := range w.Weight {
		if len(row) != in {
			return errors.WrapInvalid(
				fmt.Errorf("%w: row %d has %d columns, expected %d",
					errors.ErrMalformedWeight, i, len(row), in),
				"Linear", "Load", "shape check")
		}
		data = append(data, row...)
	}

	l.W = mat.NewDense(out, in, data)
	l.B = make([]float64, out)
	copy(l.B, w.Bias)
	return nil
}

// Export returns the norm's parameters in serializable form.
func (ln *LayerNorm) Export() LayerNormWeights {
	gamma := make([]float64, len(ln.Gamma))
	copy(gamma, ln.Gamma)
	beta := make([]float64, len(ln.Beta))
	copy(beta, ln.Beta)
	return LayerNormWeights{Gamma: gamma, Beta: beta}
}

// Load replaces the norm's parameters, rejecting mismatched shapes.
func (ln *LayerNorm) Load(w LayerNormWeights) error {
	if len(w.Gamma) != len(ln.Gamma) || len(w.Beta) != len(ln.Beta) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: expected %d norm parameters, got gamma=%d beta=%d",
				errors.ErrMalformedWeight, len(ln.Gamma), len(w.Gamma), len(w.Beta)),
			"LayerNorm", "Load", "shape check")
	}
	copy(ln.Gamma, w.Gamma)
	copy(ln.Beta, w.Beta)
	return nil
}

// ReadWeightFile decodes a JSON weight file into dst. A missing file
// is reported as os.ErrNotExist so callers can fall back to seeded
// init; any other failure is a malformed-weight error.
func ReadWeightFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return errors.WrapFatal(err, "nn", "ReadWeightFile", "read "+path)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrMalformedWeight, err),
			"nn", "ReadWeightFile", "parse "+path)
	}
	return nil
}
