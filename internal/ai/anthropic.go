package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/ObiAU/newssearch/internal/models"
)

type AnthropicClient struct {
	client *anthropic.Client
}

func NewAnthropicClient(apiKey, baseURL string) *AnthropicClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &AnthropicClient{client: anthropic.NewClient(apiKey, opts...)}
}

func (c *AnthropicClient) Complete(ctx context.Context, model, system, user string) (string, error) {
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		System:    system,
		Messages:  []anthropic.Message{anthropic.NewUserTextMessage(user)},
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		return "", classifyAnthropicError(model, err)
	}

	var sb strings.Builder
	for _, content := range resp.Content {
		if content.Text != nil {
			sb.WriteString(*content.Text)
		}
	}
	if sb.Len() == 0 {
		return "", models.NewError(models.KindModelUnavailable, "complete", model, errors.New("no text in anthropic response"))
	}
	return sb.String(), nil
}

func classifyAnthropicError(model string, err error) error {
	cause := fmt.Errorf("anthropic request failed: %w", err)

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimitErr():
			return models.NewError(models.KindRateLimited, "complete", model, cause)
		case apiErr.IsOverloadedErr(), apiErr.IsApiErr():
			return models.NewError(models.KindModelUnavailable, "complete", model, cause)
		case strings.Contains(apiErr.Message, "prompt is too long"):
			return models.NewError(models.KindContentTooLarge, "complete", model, cause)
		}
	}

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.StatusCode == http.StatusTooManyRequests:
			return models.NewError(models.KindRateLimited, "complete", model, cause)
		case reqErr.StatusCode == http.StatusRequestEntityTooLarge:
			return models.NewError(models.KindContentTooLarge, "complete", model, cause)
		case reqErr.StatusCode >= 500:
			return models.NewError(models.KindModelUnavailable, "complete", model, cause)
		}
	}

	if apiErr != nil || reqErr != nil {
		return models.NewError(models.KindNetworkPermanent, "complete", model, cause)
	}
	return transportError(model, err)
}
