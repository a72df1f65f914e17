// Package retry implements the bounded, jittered exponential backoff shared
// by the fetcher and the summarizer.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ObiAU/newssearch/internal/models"
)

// Policy bounds how often and how patiently an operation is retried.
// The zero value performs a single attempt.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable decides whether an error deserves another attempt.
	// Defaults to models.IsRetryable.
	Retryable func(error) bool

	// OnRetry is called before sleeping ahead of attempt n+1.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func New(maxAttempts int, base, max time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: base, MaxDelay: max}
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent, or ctx is done. The last error is returned as is.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = models.IsRetryable
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				err = models.NewError(models.KindCancelled, "retry", "", ctxErr)
			}
			return err
		}

		err = fn(ctx, attempt)
		if err == nil || !retryable(err) || attempt == attempts {
			return err
		}

		delay := p.Backoff(attempt)
		if hint := models.RetryAfterOf(err); hint > delay {
			delay = hint
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

// Backoff returns the full-jitter delay before the attempt following
// attempt: a uniform draw from [0, min(MaxDelay, BaseDelay*2^(attempt-1))].
func (p Policy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	ceiling := p.BaseDelay
	for i := 1; i < attempt; i++ {
		ceiling *= 2
		if p.MaxDelay > 0 && ceiling >= p.MaxDelay {
			ceiling = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && ceiling > p.MaxDelay {
		ceiling = p.MaxDelay
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. Unparsable or past values yield 0.
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// StatusError classifies an HTTP status for op on url. 2xx yields nil; 408,
// 429 and 5xx are transient and carry the Retry-After hint; the rest are
// permanent.
func StatusError(op, url string, code int, retryAfter string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500:
		e := models.NewError(models.KindNetworkTransient, op, url, fmt.Errorf("status %d", code))
		e.RetryAfter = ParseRetryAfter(retryAfter)
		return e
	default:
		return models.NewError(models.KindNetworkPermanent, op, url, fmt.Errorf("status %d", code))
	}
}
