// Package nn provides the small neural-network primitives shared by
// the sequence encoder and the classifier: linear layers, layer
// normalization, activations, and JSON weight (de)serialization.
// Inference only; there is no training path.
package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/llamasearchai/llamaneuro/errors"
)

// Linear is a fully connected layer computing y = x W^T + b.
type Linear struct {
	// W has shape [out, in].
	W *mat.Dense
	B []float64
}

// NewLinearXavier creates a layer with Xavier-uniform weights and zero
// bias, the init used by transformer projections.
func NewLinearXavier(in, out int, rng *rand.Rand) *Linear {
	limit := math.Sqrt(6.0 / float64(in+out))
	return newLinear(in, out, func() float64 {
		return (rng.Float64()*2 - 1) * limit
	})
}

// NewLinearKaiming creates a layer with Kaiming-normal weights and
// zero bias, the init used ahead of ReLU activations.
func NewLinearKaiming(in, out int, rng *rand.Rand) *Linear {
	std := math.Sqrt(2.0 / float64(out))
	return newLinear(in, out, func() float64 {
		return rng.NormFloat64() * std
	})
}

func newLinear(in, out int, sample func() float64) *Linear {
	data := make([]float64, out*in)
	for i := range data {
		data[i] = sample()
	}
	return &Linear{
		W: mat.NewDense(out, in, data),
		B: make([]float64, out),
	}
}

// InDim returns the input dimension.
func (l *Linear) InDim() int {
	_, in := l.W.Dims()
	return in
}

// OutDim returns the output dimension.
func (l *Linear) OutDim() int {
	out, _ := l.W.Dims()
	return out
}

// Forward applies the layer to every row of x ([n, in] -> [n, out]).
func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	out := l.OutDim()

	var y mat.Dense
	y.Mul(x, l.W.T())

	for i := 0; i < n; i++ {
		for j := 0; j < out; j++ {
			y.Set(i, j, y.At(i, j)+l.B[j])
		}
	}
	return &y
}

// ForwardVec applies the layer to a single vector.
func (l *Linear) ForwardVec(x []float64) ([]float64, error) {
	if len(x) != l.InDim() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: layer expects %d inputs, got %d", errors.ErrShapeMismatch, l.InDim(), len(x)),
			"Linear", "ForwardVec", "dimension check")
	}

	out := make([]float64, l.OutDim())
	for i := range out {
		sum := l.B[i]
		for j, v := range x {
			sum += l.W.At(i, j) * v
		}
		out[i] = sum
	}
	return out, nil
}

// LayerNorm normalizes each row to zero mean and unit variance, then
// applies the learned affine transform.
type LayerNorm struct {
	Gamma []float64
	Beta  []float64
	Eps   float64
}

// NewLayerNorm creates an identity-initialized LayerNorm over dim.
func NewLayerNorm(dim int) *LayerNorm {
	gamma := make([]float64, dim)
	for i := range gamma {
		gamma[i] = 1
	}
	return &LayerNorm{Gamma: gamma, Beta: make([]float64, dim), Eps: 1e-5}
}

// Forward normalizes every row of x in a new matrix.
func (ln *LayerNorm) Forward(x *mat.Dense) *mat.Dense {
	n, d := x.Dims()
	out := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		normalized := ln.ForwardVec(row)
		out.SetRow(i, normalized)
	}
	return out
}

// ForwardVec normalizes a single vector.
func (ln *LayerNorm) ForwardVec(x []float64) []float64 {
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))

	var variance float64
	for _, v := range x {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(x))

	inv := 1.0 / math.Sqrt(variance+ln.Eps)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v-mean)*inv*ln.Gamma[i] + ln.Beta[i]
	}
	return out
}

// ReLU applies max(0, v) elementwise in place and returns x.
func ReLU(x *mat.Dense) *mat.Dense {
	n, d := x.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			if x.At(i, j) < 0 {
				x.Set(i, j, 0)
			}
		}
	}
	return x
}

// ReLUVec applies max(0, v) elementwise in place and returns x.
func ReLUVec(x []float64) []float64 {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
	return x
}

// Softmax computes a numerically stable softmax: the max logit is
// subtracted before exponentiation so large logits cannot overflow.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}

	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}

	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - maxLogit)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// SoftmaxRows applies Softmax to every row of x in place.
func SoftmaxRows(x *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	for i := 0; i < n; i++ {
		x.SetRow(i, Softmax(x.RawRowView(i)))
	}
	return x
}

// Argmax returns the index of the largest value.
func Argmax(x []float64) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}
