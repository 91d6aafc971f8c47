package classifier

import (
	"github.com/llamasearchai/llamaneuro/neuro/nn"
)

// Weights is the JSON layout of a classifier weight file.
type Weights struct {
	FC1   nn.LinearWeights    `json:"fc1"`
	FC2   nn.LinearWeights    `json:"fc2"`
	FC3   nn.LinearWeights    `json:"fc3"`
	Norm1 nn.LayerNormWeights `json:"norm1"`
	Norm2 nn.LayerNormWeights `json:"norm2"`
}

func (c *Classifier) loadWeights(path string) error {
	var w Weights
	if err := nn.ReadWeightFile(path, &w); err != nil {
		return err
	}
	if err := c.fc1.Load(w.FC1); err != nil {
		return err
	}
	if err := c.fc2.Load(w.FC2); err != nil {
		return err
	}
	if err := c.fc3.Load(w.FC3); err != nil {
		return err
	}
	if err := c.norm1.Load(w.Norm1); err != nil {
		return err
	}
	return c.norm2.Load(w.Norm2)
}

// ExportWeights serializes the current parameters in the same JSON
// layout loadWeights expects.
func (c *Classifier) ExportWeights() Weights {
	return Weights{
		FC1:   c.fc1.Export(),
		FC2:   c.fc2.Export(),
		FC3:   c.fc3.Export(),
		Norm1: c.norm1.Export(),
		Norm2: c.norm2.Export(),
	}
}
