// Package llm wraps the generative-text providers behind a single call.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/research/internal/config"
)

// ErrNotConfigured is returned when the selected provider has no API key.
var ErrNotConfigured = errors.New("llm provider not configured")

// Response is the text of one completion.
type Response struct {
	Content      string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Generator produces a completion for a single user prompt. Implementations
// make exactly one upstream call per invocation.
type Generator interface {
	GenerateResponse(ctx context.Context, prompt string) (*Response, error)
}

// New returns the generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case config.ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Unconfigured is a Generator that always fails with ErrNotConfigured. The
// service runs with it when no key is set so admin endpoints still start.
type Unconfigured struct{}

func (Unconfigured) GenerateResponse(context.Context, string) (*Response, error) {
	return nil, ErrNotConfigured
}
