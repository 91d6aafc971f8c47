package neuro

import (
	"fmt"

	"github.com/llamasearchai/llamaneuro/errors"
)

// SignalBuffer is the rolling multi-channel signal window, shaped
// [channels][samples]. Each pushed chunk evicts the oldest columns
// (shift left, append right); the shape only changes through
// Reallocate. The buffer is owned by the processor loop and is never
// handed out by mutable reference.
type SignalBuffer struct {
	data     [][]float64
	channels int
	samples  int
}

// NewSignalBuffer allocates a zero-filled buffer.
func NewSignalBuffer(channels, samples int) (*SignalBuffer, error) {
	if channels < 1 || samples < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %d channels x %d samples", errors.ErrInvalidConfig, channels, samples),
			"SignalBuffer", "NewSignalBuffer", "shape check")
	}
	sb := &SignalBuffer{channels: channels, samples: samples}
	sb.allocate()
	return sb, nil
}

func (sb *SignalBuffer) allocate() {
	sb.data = make([][]float64, sb.channels)
	for ch := range sb.data {
		sb.data[ch] = make([]float64, sb.samples)
	}
}

// Channels returns the channel count.
func (sb *SignalBuffer) Channels() int { return sb.channels }

// Samples returns the window length in samples.
func (sb *SignalBuffer) Samples() int { return sb.samples }

// Push appends chunk ([channels][chunkSamples]) to the right edge of
// the window, discarding the same number of samples from the left. A
// chunk wider than the window keeps only its trailing columns.
func (sb *SignalBuffer) Push(chunk [][]float64) error {
	if len(chunk) != sb.channels {
		return errors.WrapInvalid(
			fmt.Errorf("%w: chunk has %d channels, buffer has %d",
				errors.ErrShapeMismatch, len(chunk), sb.channels),
			"SignalBuffer", "Push", "shape check")
	}
	width := -1
	for ch, row := range chunk {
		if len(row) == 0 {
			return errors.WrapInvalid(errors.ErrEmptyWindow, "SignalBuffer", "Push", "empty chunk")
		}
		if width == -1 {
			width = len(row)
		} else if len(row) != width {
			return errors.WrapInvalid(
				fmt.Errorf("%w: channel %d has %d samples, channel 0 has %d",
					errors.ErrShapeMismatch, ch, len(row), width),
				"SignalBuffer", "Push", "ragged chunk")
		}
	}

	if width >= sb.samples {
		for ch := range sb.data {
			copy(sb.data[ch], chunk[ch][width-sb.samples:])
		}
		return nil
	}
	keep := sb.samples - width
	for ch := range sb.data {
		copy(sb.data[ch], sb.data[ch][width:])
		copy(sb.data[ch][keep:], chunk[ch])
	}
	return nil
}

// Zero resets every sample to 0 without changing the shape.
func (sb *SignalBuffer) Zero() {
	for ch := range sb.data {
		for i := range sb.data[ch] {
			sb.data[ch][i] = 0
		}
	}
}

// Reallocate resizes the buffer to the new shape and zero-fills it.
func (sb *SignalBuffer) Reallocate(channels, samples int) error {
	if channels < 1 || samples < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %d channels x %d samples", errors.ErrInvalidConfig, channels, samples),
			"SignalBuffer", "Reallocate", "shape check")
	}
	sb.channels = channels
	sb.samples = samples
	sb.allocate()
	return nil
}

// Data returns a deep copy of the window.
func (sb *SignalBuffer) Data() [][]float64 {
	out := make([][]float64, sb.channels)
	for ch := range sb.data {
		out[ch] = make([]float64, sb.samples)
		copy(out[ch], sb.data[ch])
	}
	return out
}
