// Package llm wraps the chat model providers behind a single text-in,
// text-out interface.
package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// Completer sends one user prompt and returns the model's text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Config selects a provider and tunes the call wrapper around it.
type Config struct {
	Provider      string
	APIKey        string
	Model         string
	MaxTokens     int64
	Timeout       time.Duration
	RatePerMinute float64
	MaxAttempts   int

	// BaseURL overrides the provider endpoint (proxies, tests).
	BaseURL string
}

// New builds the provider client named by cfg.Provider, wrapped with rate
// limiting, retries and a per-call timeout.
func New(ctx context.Context, cfg Config) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, eris.Errorf("llm: %s api key is required", cfg.Provider)
	}

	var (
		c   Completer
		err error
	)
	switch cfg.Provider {
	case ProviderAnthropic:
		c = NewAnthropic(cfg)
	case ProviderOpenAI:
		c = NewOpenAI(cfg)
	case ProviderGemini:
		c, err = NewGemini(ctx, cfg)
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewLimited(c, LimitOptions{
		RatePerMinute: cfg.RatePerMinute,
		MaxAttempts:   cfg.MaxAttempts,
		Timeout:       cfg.Timeout,
	}), nil
}

// Usage tracks token consumption of one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Log records token usage with structured zap fields.
func (u Usage) Log(provider, model string) {
	zap.L().Info("llm: usage",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
	)
}
