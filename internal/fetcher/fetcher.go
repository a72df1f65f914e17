package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"

	"github.com/ObiAU/newssearch/internal/config"
	"github.com/ObiAU/newssearch/internal/logging"
	"github.com/ObiAU/newssearch/internal/models"
	"github.com/ObiAU/newssearch/internal/retry"
)

const (
	maxBodyBytes = 5 << 20
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Page is the outcome of downloading one candidate: HTML on success, a typed
// *models.Error otherwise.
type Page struct {
	Candidate models.Candidate
	HTML      string
	FinalURL  string
	Err       error
}

type Fetcher struct {
	sources       []models.NewsSource
	client        *http.Client
	policy        retry.Policy
	timeout       time.Duration
	maxConcurrent int
	defaultLimit  int
	newsSuffix    string
	recencyWindow time.Duration
	now           func() time.Time
	log           *slog.Logger
}

func New(cfg *config.Config, sources []models.NewsSource) *Fetcher {
	f := &Fetcher{
		sources: sources,
		client: &http.Client{
			// Per-attempt deadlines come from the request context.
			Timeout: 0,
		},
		timeout:       cfg.RequestTimeout,
		maxConcurrent: cfg.MaxConcurrentFetches,
		defaultLimit:  cfg.DefaultLimit,
		newsSuffix:    cfg.NewsSuffix,
		recencyWindow: cfg.RecencyWindow,
		now:           time.Now,
		log:           logging.New("fetcher"),
	}
	f.policy = retry.New(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	f.policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		f.log.Debug("retrying request", "attempt", attempt, "delay", delay, "error", err)
	}
	if f.defaultLimit <= 0 {
		f.defaultLimit = 10
	}
	if f.maxConcurrent <= 0 {
		f.maxConcurrent = 1
	}
	return f
}

// Fetch downloads every candidate with bounded concurrency. The returned
// channel yields exactly one Page per candidate, in completion order, and is
// closed when all downloads have finished or been abandoned.
func (f *Fetcher) Fetch(ctx context.Context, candidates []models.Candidate) <-chan Page {
	pages := make(chan Page, len(candidates))

	go func() {
		defer close(pages)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.maxConcurrent)
		for _, c := range candidates {
			if gctx.Err() != nil {
				pages <- Page{Candidate: c, Err: models.NewError(models.KindCancelled, "fetch", c.URL, gctx.Err())}
				continue
			}
			g.Go(func() error {
				pages <- f.FetchPage(gctx, c)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return pages
}

// FetchPage downloads a single candidate, retrying transient failures.
func (f *Fetcher) FetchPage(ctx context.Context, c models.Candidate) Page {
	page := Page{Candidate: c}
	err := f.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		html, finalURL, err := f.get(ctx, c.URL)
		if err != nil {
			return err
		}
		page.HTML = html
		page.FinalURL = finalURL
		return nil
	})
	if err != nil {
		if ctx.Err() != nil && models.KindOf(err) != models.KindNetworkPermanent {
			err = models.NewError(models.KindCancelled, "fetch", c.URL, ctx.Err())
		}
		page.Err = err
		f.log.Debug("fetch failed", "url", c.URL, "error", err)
	}
	return page
}

func (f *Fetcher) get(ctx context.Context, url string) (string, string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", models.NewError(models.KindNetworkPermanent, "fetch", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", models.NewError(models.KindNetworkTransient, "fetch", url, err)
	}
	defer resp.Body.Close()

	if err := retry.StatusError("fetch", url, resp.StatusCode, resp.Header.Get("Retry-After")); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if !isTextual(contentType) {
		return "", "", models.NewError(models.KindNetworkPermanent, "fetch", url,
			fmt.Errorf("unsupported content type %q", contentType))
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), contentType)
	if err != nil {
		return "", "", models.NewError(models.KindNetworkPermanent, "fetch", url, err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", "", models.NewError(models.KindNetworkTransient, "fetch", url, err)
	}

	return string(data), resp.Request.URL.String(), nil
}

func isTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "text/") ||
		strings.Contains(mediaType, "html") ||
		strings.Contains(mediaType, "xml")
}

// IsCancelled reports whether a page was abandoned because its query went away.
func (p Page) IsCancelled() bool {
	return errors.Is(p.Err, models.ErrCancelled)
}
