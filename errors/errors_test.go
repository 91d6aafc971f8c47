package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.class.String())
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"rate limited", ErrRateLimited, true},
		{"context deadline", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"shape mismatch", ErrShapeMismatch, false},
		{"pattern match", errors.New("service temporarily unavailable"), true},
		{"wrapped transient", WrapTransient(errors.New("boom"), "Processor", "tick", "feature extraction"), true},
		{"wrapped invalid", WrapInvalid(errors.New("boom"), "Processor", "Ingest", "shape check"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.True(t, IsInvalid(ErrShapeMismatch))
	assert.True(t, IsInvalid(ErrEmptyWindow))
	assert.True(t, IsInvalid(ErrUnknownLabel))
	assert.True(t, IsInvalid(ErrNotSimulated))
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsInvalid(ErrConnectionLost))

	wrapped := WrapInvalid(ErrUnknownLabel, "Processor", "SetSimulatedLabel", "label validation")
	assert.True(t, IsInvalid(wrapped))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(ErrMalformedWeight))
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(ErrConnectionTimeout))

	wrapped := WrapFatal(errors.New("boom"), "Encoder", "New", "weight loading")
	assert.True(t, IsFatal(wrapped))
	// A fatal classification must win over transient pattern matching.
	wrapped = WrapFatal(errors.New("connection exploded"), "Encoder", "New", "weight loading")
	assert.True(t, IsFatal(wrapped))
	assert.False(t, IsTransient(wrapped))
}

func TestWrapFormat(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, "Processor", "Start", "model check")
	require.Error(t, err)
	assert.Equal(t, "Processor.Start: model check failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))

	assert.NoError(t, Wrap(nil, "Processor", "Start", "model check"))
	assert.NoError(t, WrapTransient(nil, "a", "b", "c"))
	assert.NoError(t, WrapInvalid(nil, "a", "b", "c"))
	assert.NoError(t, WrapFatal(nil, "a", "b", "c"))
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	err := WrapInvalid(ErrShapeMismatch, "Processor", "Ingest", "chunk validation")

	var ce *ClassifiedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrorInvalid, ce.Class)
	assert.Equal(t, "Processor", ce.Component)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionLost))
	assert.Equal(t, ErrorInvalid, Classify(ErrShapeMismatch))
	assert.Equal(t, ErrorFatal, Classify(ErrMalformedWeight))
	// Unknown errors default to transient so callers may retry.
	assert.Equal(t, ErrorTransient, Classify(errors.New("mystery")))
}

func TestRetryConfigShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.False(t, cfg.ShouldRetry(nil, 0))
	assert.False(t, cfg.ShouldRetry(ErrConnectionLost, cfg.MaxRetries))
	assert.True(t, cfg.ShouldRetry(ErrConnectionLost, 0))
	assert.False(t, cfg.ShouldRetry(ErrShapeMismatch, 0))

	cfg.RetryableErrors = []error{ErrConnectionTimeout}
	assert.True(t, cfg.ShouldRetry(fmt.Errorf("dial: %w", ErrConnectionTimeout), 1))
	assert.False(t, cfg.ShouldRetry(ErrConnectionLost, 1))
}

func TestBackoffDelay(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:    5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
	}

	assert.Equal(t, 100*time.Millisecond, cfg.BackoffDelay(0))
	assert.Equal(t, 200*time.Millisecond, cfg.BackoffDelay(1))
	assert.Equal(t, 400*time.Millisecond, cfg.BackoffDelay(2))
	// Capped at MaxDelay.
	assert.Equal(t, 1*time.Second, cfg.BackoffDelay(10))
}

func TestToRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	rc := cfg.ToRetryConfig()

	assert.Equal(t, cfg.MaxRetries+1, rc.MaxAttempts)
	assert.Equal(t, cfg.InitialDelay, rc.InitialDelay)
	assert.Equal(t, cfg.MaxDelay, rc.MaxDelay)
	assert.True(t, rc.AddJitter)
}
