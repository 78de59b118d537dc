package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/SwarnimWalavalkar/conjure/pkg/config"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// Provider names accepted by New.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGoogle     = "google"
)

// New returns the text completion model for the configured provider. Every
// call may override the model with llms.WithModel; defaultModel is used when
// it does not.
func New(ctx context.Context, cfg *config.Config) (llms.Model, error) {
	switch cfg.LLMProvider {
	case ProviderOpenRouter, "":
		return OpenRouter(cfg.OpenRouterApiKey, cfg.DefaultModel)
	case ProviderGoogle:
		return GoogleAi(ctx, cfg.GoogleApiKey, cfg.DefaultModel)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}

// OpenRouter talks to OpenRouter through its OpenAI compatible API.
func OpenRouter(apiKey, defaultModel string) (*openai.LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is not set")
	}
	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(openRouterBaseURL),
		openai.WithModel(defaultModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenRouter client: %w", err)
	}
	return llm, nil
}

// GoogleAi talks to the Gemini API.
func GoogleAi(ctx context.Context, apiKey, defaultModel string) (*googleai.GoogleAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is not set")
	}
	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(defaultModel))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google AI client: %w", err)
	}
	return llm, nil
}
