package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/ObiAU/newssearch/internal/models"
	"github.com/ObiAU/newssearch/internal/retry"
)

const (
	openRouterReferer = "https://github.com/ObiAU/newssearch"
	openRouterTitle   = "NewsSearch"
	maxOutputTokens   = 800
)

type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient talks to the OpenAI chat API, or to any compatible
// endpoint when baseURL is set. OpenRouter gets its attribution headers.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
		if strings.Contains(baseURL, "openrouter.ai") {
			opts = append(opts,
				option.WithHeader("HTTP-Referer", openRouterReferer),
				option.WithHeader("X-Title", openRouterTitle),
			)
		}
	}
	return &OpenAIClient{client: openai.NewClient(opts...)}
}

func (c *OpenAIClient) Complete(ctx context.Context, model, system, user string) (string, error) {
	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.2),
		MaxTokens:   openai.Int(maxOutputTokens),
	})
	if err != nil {
		return "", classifyOpenAIError(model, err)
	}

	if len(response.Choices) == 0 {
		return "", models.NewError(models.KindModelUnavailable, "complete", model, errors.New("no response from openai"))
	}
	return response.Choices[0].Message.Content, nil
}

func classifyOpenAIError(model string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return transportError(model, err)
	}

	cause := fmt.Errorf("openai request failed: %w", err)
	switch {
	case apiErr.Code == "context_length_exceeded" || apiErr.StatusCode == http.StatusRequestEntityTooLarge:
		return models.NewError(models.KindContentTooLarge, "complete", model, cause)
	case apiErr.StatusCode == http.StatusTooManyRequests:
		e := models.NewError(models.KindRateLimited, "complete", model, cause)
		if apiErr.Response != nil {
			e.RetryAfter = retry.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return e
	case apiErr.StatusCode >= 500, apiErr.StatusCode == http.StatusRequestTimeout, apiErr.StatusCode == http.StatusNotFound:
		return models.NewError(models.KindModelUnavailable, "complete", model, cause)
	default:
		return models.NewError(models.KindNetworkPermanent, "complete", model, cause)
	}
}

// transportError covers failures that never produced an API response.
func transportError(model string, err error) error {
	if errors.Is(err, context.Canceled) {
		return models.NewError(models.KindCancelled, "complete", model, err)
	}
	return models.NewError(models.KindModelUnavailable, "complete", model, err)
}
