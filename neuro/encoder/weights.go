package encoder

import (
	"fmt"

	"github.com/llamasearchai/llamaneuro/errors"
	"github.com/llamasearchai/llamaneuro/neuro/nn"
)

// BlockWeights holds the parameters of one attention block.
type BlockWeights struct {
	Query  nn.LinearWeights    `json:"query"`
	Key    nn.LinearWeights    `json:"key"`
	Value  nn.LinearWeights    `json:"value"`
	Output nn.LinearWeights    `json:"output"`
	FF1    nn.LinearWeights    `json:"ff1"`
	FF2    nn.LinearWeights    `json:"ff2"`
	Norm1  nn.LayerNormWeights `json:"norm1"`
	Norm2  nn.LayerNormWeights `json:"norm2"`
}

// Weights is the JSON layout of an encoder weight file.
type Weights struct {
	InputProjection  nn.LinearWeights `json:"input_projection"`
	Blocks           []BlockWeights   `json:"blocks"`
	OutputProjection nn.LinearWeights `json:"output_projection"`
}

// loadWeights replaces the seeded parameters with the contents of a
// JSON weight file. A missing file is returned as-is so the caller can
// keep the seeded initialization.
func (e *Encoder) loadWeights(path string) error {
	var w Weights
	if err := nn.ReadWeightFile(path, &w); err != nil {
		return err
	}
	if len(w.Blocks) != len(e.blocks) {
		return errors.WrapFatal(
			fmt.Errorf("%w: weight file has %d blocks, encoder has %d",
				errors.ErrMalformedWeight, len(w.Blocks), len(e.blocks)),
			"Encoder", "loadWeights", "block count check")
	}
	if err := e.inProj.Load(w.InputProjection); err != nil {
		return err
	}
	if err := e.outProj.Load(w.OutputProjection); err != nil {
		return err
	}
	for i, b := range e.blocks {
		bw := w.Blocks[i]
		for _, step := range []struct {
			layer *nn.Linear
			src   nn.LinearWeights
		}{
			{b.wq, bw.Query}, {b.wk, bw.Key}, {b.wv, bw.Value}, {b.wo, bw.Output},
			{b.ff1, bw.FF1}, {b.ff2, bw.FF2},
		} {
			if err := step.layer.Load(step.src); err != nil {
				return err
			}
		}
		if err := b.norm1.Load(bw.Norm1); err != nil {
			return err
		}
		if err := b.norm2.Load(bw.Norm2); err != nil {
			return err
		}
	}
	return nil
}

// ExportWeights serializes the current parameters in the same JSON
// layout loadWeights expects.
func (e *Encoder) ExportWeights() Weights {
	w := Weights{
		InputProjection:  e.inProj.Export(),
		OutputProjection: e.outProj.Export(),
	}
	for _, b := range e.blocks {
		w.Blocks = append(w.Blocks, BlockWeights{
			Query:  b.wq.Export(),
			Key:    b.wk.Export(),
			Value:  b.wv.Export(),
			Output: b.wo.Export(),
			FF1:    b.ff1.Export(),
			FF2:    b.ff2.Export(),
			Norm1:  b.norm1.Export(),
			Norm2:  b.norm2.Export(),
		})
	}
	return w
}
