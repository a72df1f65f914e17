package ai

import (
	"context"
	"fmt"

	"github.com/ObiAU/newssearch/internal/config"
)

// Client is a chat-completion provider. Implementations translate provider
// failures into *models.Error kinds so callers can retry or fall back.
type Client interface {
	Complete(ctx context.Context, model, system, user string) (string, error)
}

// NewClient builds the provider selected by cfg.LLMProvider.
func NewClient(cfg *config.Config) (Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.LLMBaseURL), nil
	case "anthropic":
		return NewAnthropicClient(cfg.AnthropicAPIKey, cfg.LLMBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
