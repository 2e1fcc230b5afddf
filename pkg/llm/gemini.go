package llm

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/estimator/internal/resilience"
)

// Gemini completes prompts with the Gemini API.
type Gemini struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGemini creates a Gemini completer on the Gemini API backend.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: gemini client")
	}
	return &Gemini{client: client, model: cfg.Model, maxTokens: int32(cfg.MaxTokens)}, nil
}

// Name implements Completer.
func (g *Gemini) Name() string { return ProviderGemini }

// Complete implements Completer.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		MaxOutputTokens:  g.maxTokens,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", eris.Wrap(classifyGemini(err), "llm: gemini generate content")
	}

	if u := resp.UsageMetadata; u != nil {
		Usage{
			InputTokens:  int64(u.PromptTokenCount),
			OutputTokens: int64(u.CandidatesTokenCount),
		}.Log(ProviderGemini, g.model)
	}

	text := resp.Text()
	if text == "" {
		return "", eris.New("llm: gemini returned no text")
	}
	return text, nil
}

func classifyGemini(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return resilience.FromStatus(err, apiErr.Code, "")
	}
	return err
}
