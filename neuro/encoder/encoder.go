// Package encoder implements a transformer-style sequence encoder that
// maps a [channels x features] matrix into a fixed-size embedding plus
// the final block's attention matrix. It is pure Go, inference only,
// with deterministic seeded initialization or an optional JSON weight
// file.
package encoder

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/llamasearchai/llamaneuro/errors"
	"github.com/llamasearchai/llamaneuro/neuro/nn"
)

// Config describes the encoder architecture.
type Config struct {
	InputDim  int // features per sequence position
	HiddenDim int
	Heads     int
	Layers    int

	// WeightsPath optionally points at a JSON weight file. Missing
	// file means seeded init; a malformed file fails construction.
	WeightsPath string
	Seed        int64
}

// Encoder is the transformer encoder: input projection, sinusoidal
// positional encoding, N attention blocks, output projection, mean
// pooling over the sequence axis.
type Encoder struct {
	cfg Config

	inProj  *nn.Linear
	blocks  []*block
	outProj *nn.Linear
}

type block struct {
	wq, wk, wv, wo *nn.Linear
	ff1, ff2       *nn.Linear
	norm1, norm2   *nn.LayerNorm
	heads          int
}

// New constructs the encoder. Construction fails only on invalid
// dimensions or a malformed weight file; a missing weight file falls
// back to deterministic seeded initialization.
func New(cfg Config) (*Encoder, error) {
	if cfg.InputDim < 1 || cfg.HiddenDim < 1 || cfg.Heads < 1 || cfg.Layers < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: input=%d hidden=%d heads=%d layers=%d",
				errors.ErrInvalidConfig, cfg.InputDim, cfg.HiddenDim, cfg.Heads, cfg.Layers),
			"Encoder", "New", "dimension check")
	}
	if cfg.HiddenDim%cfg.Heads != 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: hidden dim %d not divisible by %d heads",
				errors.ErrInvalidConfig, cfg.HiddenDim, cfg.Heads),
			"Encoder", "New", "dimension check")
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	e := &Encoder{
		cfg:     cfg,
		inProj:  nn.NewLinearXavier(cfg.InputDim, cfg.HiddenDim, rng),
		outProj: nn.NewLinearXavier(cfg.HiddenDim, cfg.HiddenDim, rng),
	}
	for i := 0; i < cfg.Layers; i++ {
		e.blocks = append(e.blocks, &block{
			wq:    nn.NewLinearXavier(cfg.HiddenDim, cfg.HiddenDim, rng),
			wk:    nn.NewLinearXavier(cfg.HiddenDim, cfg.HiddenDim, rng),
			wv:    nn.NewLinearXavier(cfg.HiddenDim, cfg.HiddenDim, rng),
			wo:    nn.NewLinearXavier(cfg.HiddenDim, cfg.HiddenDim, rng),
			ff1:   nn.NewLinearXavier(cfg.HiddenDim, cfg.HiddenDim*4, rng),
			ff2:   nn.NewLinearXavier(cfg.HiddenDim*4, cfg.HiddenDim, rng),
			norm1: nn.NewLayerNorm(cfg.HiddenDim),
			norm2: nn.NewLayerNorm(cfg.HiddenDim),
			heads: cfg.Heads,
		})
	}

	if cfg.WeightsPath != "" {
		if err := e.loadWeights(cfg.WeightsPath); err != nil {
			if os.IsNotExist(err) {
				return e, nil
			}
			return nil, err
		}
	}
	return e, nil
}

// Config returns the encoder's architecture parameters.
func (e *Encoder) Config() Config { return e.cfg }

// Encode maps seq ([positions][InputDim]) to a HiddenDim embedding and
// the final block's attention matrix ([positions][positions], averaged
// over heads).
func (e *Encoder) Encode(seq [][]float64) ([]float64, [][]float64, error) {
	if len(seq) == 0 {
		return nil, nil, errors.WrapInvalid(errors.ErrEmptyWindow, "Encoder", "Encode", "empty sequence")
	}
	for i, row := range seq {
		if len(row) != e.cfg.InputDim {
			return nil, nil, errors.WrapInvalid(
				fmt.Errorf("%w: position %d has %d features, encoder expects %d",
					errors.ErrShapeMismatch, i, len(row), e.cfg.InputDim),
				"Encoder", "Encode", "shape check")
		}
	}

	n := len(seq)
	data := make([]float64, 0, n*e.cfg.InputDim)
	for _, row := range seq {
		data = append(data, row...)
	}
	x := e.inProj.Forward(mat.NewDense(n, e.cfg.InputDim, data))

	addPositionalEncoding(x)

	var attention *mat.Dense
	for i, b := range e.blocks {
		last := i == len(e.blocks)-1
		x, attention = b.forward(x, last)
	}

	x = e.outProj.Forward(x)

	// Mean pool over the sequence axis.
	embedding := make([]float64, e.cfg.HiddenDim)
	for i := 0; i < n; i++ {
		for j := 0; j < e.cfg.HiddenDim; j++ {
			embedding[j] += x.At(i, j)
		}
	}
	for j := range embedding {
		embedding[j] /= float64(n)
	}

	attn := make([][]float64, n)
	for i := range attn {
		attn[i] = make([]float64, n)
		copy(attn[i], attention.RawRowView(i))
	}

	return embedding, attn, nil
}

// forward runs one attention block. When wantAttention is set the
// head-averaged attention weights are returned alongside the output.
func (b *block) forward(x *mat.Dense, wantAttention bool) (*mat.Dense, *mat.Dense) {
	n, d := x.Dims()
	headDim := d / b.heads

	q := b.wq.Forward(x)
	k := b.wk.Forward(x)
	v := b.wv.Forward(x)

	concat := mat.NewDense(n, d, nil)
	var avgAttention *mat.Dense
	if wantAttention {
		avgAttention = mat.NewDense(n, n, nil)
	}

	scale := 1.0 / math.Sqrt(float64(headDim))
	for h := 0; h < b.heads; h++ {
		qh := q.Slice(0, n, h*headDim, (h+1)*headDim)
		kh := k.Slice(0, n, h*headDim, (h+1)*headDim)
		vh := v.Slice(0, n, h*headDim, (h+1)*headDim)

		var scores mat.Dense
		scores.Mul(qh, kh.T())
		scores.Scale(scale, &scores)
		nn.SoftmaxRows(&scores)

		var headOut mat.Dense
		headOut.Mul(&scores, vh)
		for i := 0; i < n; i++ {
			for j := 0; j < headDim; j++ {
				concat.Set(i, h*headDim+j, headOut.At(i, j))
			}
		}

		if wantAttention {
			avgAttention.Add(avgAttention, &scores)
		}
	}
	if wantAttention {
		avgAttention.Scale(1.0/float64(b.heads), avgAttention)
	}

	attnOut := b.wo.Forward(concat)

	// Residual + norm around the attention sub-block.
	var sum mat.Dense
	sum.Add(x, attnOut)
	x = b.norm1.Forward(&sum)

	// Position-wise feed-forward with its own residual + norm.
	ff := b.ff2.Forward(nn.ReLU(b.ff1.Forward(x)))
	var sum2 mat.Dense
	sum2.Add(x, ff)
	x = b.norm2.Forward(&sum2)

	return x, avgAttention
}

// addPositionalEncoding adds the standard sinusoidal position code:
// sine on even dimensions, cosine on odd, frequencies geometrically
// spaced from 1 to 1/10000.
func addPositionalEncoding(x *mat.Dense) {
	n, d := x.Dims()
	for pos := 0; pos < n; pos++ {
		for i := 0; i < d; i += 2 {
			angle := float64(pos) * math.Exp(-math.Log(10000.0)*float64(i)/float64(d))
			x.Set(pos, i, x.At(pos, i)+math.Sin(angle))
			if i+1 < d {
				x.Set(pos, i+1, x.At(pos, i+1)+math.Cos(angle))
			}
		}
	}
}
