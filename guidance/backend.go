package guidance

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/llamasearchai/llamaneuro/errors"
	"github.com/llamasearchai/llamaneuro/pkg/retry"
)

// CompletionRequest carries one prompt and its sampling parameters to
// a Backend.
type CompletionRequest struct {
	Prompt           string
	Model            string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
}

// Backend is the narrow boundary to the language model. The generator
// owns exactly one backend, selected at initialization.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type openaiBackend struct {
	client openai.Client
}

func newOpenAIBackend(apiKey string) *openaiBackend {
	return &openaiBackend{client: openai.NewClient(option.WithAPIKey(apiKey))}
}

func (b *openaiBackend) Name() string { return "openai" }

func (b *openaiBackend) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		MaxTokens:        openai.Int(int64(req.MaxTokens)),
		Temperature:      param.NewOpt(req.Temperature),
		TopP:             param.NewOpt(req.TopP),
		FrequencyPenalty: param.NewOpt(req.FrequencyPenalty),
	}

	// Completion calls ride out brief API hiccups; context errors
	// are the caller's cancellation and fail fast.
	return retry.DoWithResult(ctx, retry.DefaultConfig(), func() (string, error) {
		resp, err := b.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return "", retry.NonRetryable(
					errors.WrapTransient(err, "OpenAIBackend", "Complete", "chat completion"))
			}
			return "", errors.WrapTransient(err, "OpenAIBackend", "Complete", "chat completion")
		}
		if len(resp.Choices) == 0 {
			return "", errors.WrapTransient(
				fmt.Errorf("%w: completion returned no choices", errors.ErrBackendUnavailable),
				"OpenAIBackend", "Complete", "chat completion")
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// stubBackend produces deterministic text locally, used when no API
// key or network is available and in tests.
type stubBackend struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var stubLexicon = []string{
	"signal", "focus", "pattern", "rhythm", "steady", "shift", "wave",
	"channel", "intent", "motion", "pulse", "state", "drift", "calm",
}

func newStubBackend(seed int64) *stubBackend {
	return &stubBackend{rng: rand.New(rand.NewSource(seed))}
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Complete(_ context.Context, req CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	words := req.MaxTokens / 8
	if words < 4 {
		words = 4
	}
	if words > 40 {
		words = 40
	}

	var b strings.Builder
	b.WriteString("Responding to ")
	b.WriteString(fmt.Sprintf("%q: ", firstLine(req.Prompt)))
	for i := 0; i < words; i++ {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(stubLexicon[s.rng.Intn(len(stubLexicon))])
	}
	b.WriteString(".")
	return b.String(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 48 {
		s = s[:48]
	}
	return s
}
