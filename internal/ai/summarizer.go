package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ObiAU/newssearch/internal/config"
	"github.com/ObiAU/newssearch/internal/logging"
	"github.com/ObiAU/newssearch/internal/models"
	"github.com/ObiAU/newssearch/internal/retry"
)

const maxKeyPoints = 5

const summarySystemPrompt = "You are a careful news analyst. You summarize articles faithfully, " +
	"without adding facts that are not in the text, and you flag claims that look unreliable."

// Summarizer produces a summary for one article.
type Summarizer interface {
	Summarize(ctx context.Context, article models.Article) (models.SummaryResult, error)
}

// Service summarizes articles through a Client with client-side rate
// limiting, bounded retries, truncation and model fallback.
type Service struct {
	client  Client
	models  []string
	budget  int
	timeout time.Duration
	policy  retry.Policy
	limiter *rate.Limiter
	now     func() time.Time
	log     *slog.Logger
}

func NewService(cfg *config.Config, client Client) *Service {
	s := &Service{
		client:  client,
		models:  ModelChain(cfg.SummaryModel, cfg.FallbackModels),
		budget:  cfg.TokenBudget,
		timeout: cfg.LLMTimeout,
		policy:  retry.New(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay),
		limiter: rate.NewLimiter(rate.Inf, 1),
		now:     time.Now,
		log:     logging.New("summarizer"),
	}
	if cfg.LLMRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.LLMRPS), 1)
	}
	s.policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.log.Warn("retrying summary", "attempt", attempt, "delay", delay, "error", err)
	}
	return s
}

// ModelChain is the ordered list of models tried for each summary, primary
// first, without duplicates.
func ModelChain(primary string, fallbacks []string) []string {
	chain := []string{primary}
	for _, m := range fallbacks {
		if m != "" && m != primary {
			chain = append(chain, m)
		}
	}
	return chain
}

// PrimaryModel is the identifier cached summaries are validated against.
func (s *Service) PrimaryModel() string {
	return s.models[0]
}

// Summarize tries each configured model in turn. A model is skipped for the
// next one only when it stays unavailable after retries.
func (s *Service) Summarize(ctx context.Context, article models.Article) (models.SummaryResult, error) {
	var lastErr error
	for i, model := range s.models {
		result, err := s.summarizeWith(ctx, model, article)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return models.SummaryResult{}, models.NewError(models.KindCancelled, "summarize", article.URL, ctx.Err())
		}
		if models.KindOf(err) != models.KindModelUnavailable || i == len(s.models)-1 {
			break
		}
		s.log.Warn("model unavailable, falling back", "model", model, "next", s.models[i+1], "error", err)
	}
	return models.SummaryResult{}, lastErr
}

func (s *Service) summarizeWith(ctx context.Context, model string, article models.Article) (models.SummaryResult, error) {
	budget := s.budget
	result, err := s.attempt(ctx, model, article, budget)
	if models.KindOf(err) == models.KindContentTooLarge {
		budget /= 2
		s.log.Info("content too large, retrying truncated", "url", article.URL, "budget", budget)
		result, err = s.attempt(ctx, model, article, budget)
	}
	return result, err
}

func (s *Service) attempt(ctx context.Context, model string, article models.Article, budget int) (models.SummaryResult, error) {
	prompt := buildSummaryPrompt(article, budget)

	var result models.SummaryResult
	err := s.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return models.NewError(models.KindCancelled, "summarize", article.URL, err)
		}

		callCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		content, err := s.client.Complete(callCtx, model, summarySystemPrompt, prompt)
		if err != nil {
			if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return models.NewError(models.KindModelUnavailable, "summarize", model, err)
			}
			return err
		}

		parsed, err := parseSummary(content)
		if err != nil {
			return models.NewError(models.KindModelUnavailable, "summarize", model, err)
		}
		result = models.SummaryResult{
			ArticleID:   article.ID,
			Summary:     parsed.Summary,
			KeyPoints:   parsed.KeyPoints,
			Risk:        parsed.Risk,
			GeneratedAt: s.now().UTC(),
			Model:       model,
		}
		return nil
	})
	return result, err
}

func buildSummaryPrompt(article models.Article, budget int) string {
	var sb strings.Builder
	sb.WriteString("Summarize this news article in 3-5 sentences and list up to 5 key points.\n")
	sb.WriteString("Rate how risky its central claims are to repeat without verification: LOW, MEDIUM or HIGH.\n")
	sb.WriteString("Respond with JSON only:\n")
	sb.WriteString(`{"summary": "summary", "key_points": ["point"], "risk": "LOW"}`)
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "Title: %s\n", article.Title)
	fmt.Fprintf(&sb, "Source: %s\n", article.Domain)
	if !article.PublishedAt.IsZero() {
		fmt.Fprintf(&sb, "Published: %s\n", article.PublishedAt.Format(time.RFC3339))
	}
	sb.WriteString("Content:\n")
	sb.WriteString(Truncate(article.Text, budget))
	return sb.String()
}

type summaryResponse struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Risk      string   `json:"risk"`
}

func parseSummary(content string) (summaryResponse, error) {
	var resp summaryResponse
	if err := json.Unmarshal([]byte(jsonBody(content)), &resp); err != nil {
		return resp, fmt.Errorf("failed to parse summary response: %w", err)
	}

	resp.Summary = strings.TrimSpace(resp.Summary)
	if resp.Summary == "" {
		return resp, errors.New("empty summary in response")
	}

	points := resp.KeyPoints[:0]
	for _, p := range resp.KeyPoints {
		if p = strings.TrimSpace(p); p != "" {
			points = append(points, p)
		}
	}
	if len(points) > maxKeyPoints {
		points = points[:maxKeyPoints]
	}
	resp.KeyPoints = points

	switch risk := strings.ToUpper(strings.TrimSpace(resp.Risk)); risk {
	case "LOW", "MEDIUM", "HIGH":
		resp.Risk = risk
	default:
		resp.Risk = ""
	}
	return resp, nil
}

// jsonBody strips markdown code fences and any chatter around the outermost
// JSON value.
func jsonBody(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimPrefix(content, "json")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	open := strings.IndexAny(content, "{[")
	if open < 0 {
		return content
	}
	closer := "}"
	if content[open] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(content, closer); end > open {
		return content[open : end+1]
	}
	return content
}
