// Package classifier implements the motor-imagery classification head:
// a three-layer feed-forward network over an embedding vector with
// normalization and ReLU between layers and a numerically stable
// softmax over the class logits.
package classifier

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/llamasearchai/llamaneuro/errors"
	"github.com/llamasearchai/llamaneuro/neuro/nn"
)

// Config describes the classifier architecture.
type Config struct {
	InputDim  int
	HiddenDim int
	Classes   []string

	// WeightsPath optionally points at a JSON weight file. Missing
	// file means seeded init; a malformed file fails construction.
	WeightsPath string
	Seed        int64
}

// Classifier maps an embedding to a probability distribution over the
// configured class labels.
type Classifier struct {
	cfg Config

	fc1, fc2, fc3 *nn.Linear
	norm1, norm2  *nn.LayerNorm
	pretrained    bool
}

// Result is a single classification outcome.
type Result struct {
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities"`
}

// New constructs the classifier with fc1 (in -> hidden),
// fc2 (hidden -> hidden/2) and fc3 (hidden/2 -> classes).
func New(cfg Config) (*Classifier, error) {
	if cfg.InputDim < 1 || cfg.HiddenDim < 2 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: input=%d hidden=%d", errors.ErrInvalidConfig, cfg.InputDim, cfg.HiddenDim),
			"Classifier", "New", "dimension check")
	}
	if len(cfg.Classes) < 2 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: need at least 2 classes, got %d", errors.ErrInvalidConfig, len(cfg.Classes)),
			"Classifier", "New", "class list check")
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	half := cfg.HiddenDim / 2
	c := &Classifier{
		cfg:   cfg,
		fc1:   nn.NewLinearKaiming(cfg.InputDim, cfg.HiddenDim, rng),
		fc2:   nn.NewLinearKaiming(cfg.HiddenDim, half, rng),
		fc3:   nn.NewLinearKaiming(half, len(cfg.Classes), rng),
		norm1: nn.NewLayerNorm(cfg.HiddenDim),
		norm2: nn.NewLayerNorm(half),
	}

	if cfg.WeightsPath != "" {
		if err := c.loadWeights(cfg.WeightsPath); err != nil {
			if os.IsNotExist(err) {
				return c, nil
			}
			return nil, err
		}
		c.pretrained = true
	}
	return c, nil
}

// Pretrained reports whether the parameters came from a weight file
// rather than seeded initialization.
func (c *Classifier) Pretrained() bool { return c.pretrained }

// Config returns the classifier's architecture parameters.
func (c *Classifier) Config() Config { return c.cfg }

// Classes returns the configured class labels in output order.
func (c *Classifier) Classes() []string { return c.cfg.Classes }

// Probabilities runs the forward pass and returns the softmax
// distribution over classes. The input length must match InputDim.
func (c *Classifier) Probabilities(embedding []float64) ([]float64, error) {
	if len(embedding) != c.cfg.InputDim {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: embedding has %d values, classifier expects %d",
				errors.ErrShapeMismatch, len(embedding), c.cfg.InputDim),
			"Classifier", "Probabilities", "shape check")
	}

	h, err := c.fc1.ForwardVec(embedding)
	if err != nil {
		return nil, err
	}
	h = nn.ReLUVec(c.norm1.ForwardVec(h))

	h, err = c.fc2.ForwardVec(h)
	if err != nil {
		return nil, err
	}
	h = nn.ReLUVec(c.norm2.ForwardVec(h))

	logits, err := c.fc3.ForwardVec(h)
	if err != nil {
		return nil, err
	}
	return nn.Softmax(logits), nil
}

// Classify returns the argmax label with its confidence and the full
// distribution.
func (c *Classifier) Classify(embedding []float64) (*Result, error) {
	probs, err := c.Probabilities(embedding)
	if err != nil {
		return nil, err
	}
	best := nn.Argmax(probs)
	return &Result{
		Label:         c.cfg.Classes[best],
		Confidence:    probs[best],
		Probabilities: probs,
	}, nil
}
