package models

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host and strips www", "https://WWW.Example.com/news/a", "https://example.com/news/a"},
		{"drops fragment and trailing slash", "https://example.com/news/a/#top", "https://example.com/news/a"},
		{"strips tracking params", "https://example.com/a?utm_source=x&id=7&fbclid=abc", "https://example.com/a?id=7"},
		{"sorts params", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"upgrades http", "http://example.com/a", "https://example.com/a"},
		{"drops default port", "https://example.com:443/a", "https://example.com/a"},
		{"rejects relative", "/just/a/path", ""},
		{"rejects empty", "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalURL(tt.in); got != tt.want {
				t.Errorf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestArticleIDStableAcrossLinkVariants(t *testing.T) {
	a := ArticleID("https://www.example.com/story?utm_medium=rss", "")
	b := ArticleID("http://example.com/story/", "")
	if a != b {
		t.Errorf("expected identical IDs, got %s and %s", a, b)
	}

	byText := ArticleID("", "some body")
	if byText == "" || byText == ArticleID("", "other body") {
		t.Errorf("expected content hash identity to differ per text")
	}
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("fetching: %w", NewError(KindNetworkTransient, "fetch", "https://a.test", cause))

	if !errors.Is(err, ErrNetworkTransient) {
		t.Error("expected errors.Is to match NetworkTransient sentinel")
	}
	if errors.Is(err, ErrNetworkPermanent) {
		t.Error("did not expect NetworkPermanent to match")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to stay reachable")
	}
	if !IsRetryable(err) {
		t.Error("expected transient error to be retryable")
	}
	if IsRetryable(NewError(KindContentTooLarge, "summarize", "", nil)) {
		t.Error("content too large is handled by truncation, not retry")
	}
}

func TestRetryAfterOf(t *testing.T) {
	err := &Error{Kind: KindRateLimited, RetryAfter: 3 * time.Second}
	if got := RetryAfterOf(fmt.Errorf("wrapped: %w", err)); got != 3*time.Second {
		t.Errorf("RetryAfterOf = %v, want 3s", got)
	}
}

func TestQueryFilters(t *testing.T) {
	q := Query{Sources: []string{"example.com"}}
	if !q.AllowsDomain("news.example.com") {
		t.Error("expected subdomain to be allowed")
	}
	if q.AllowsDomain("badexample.com") {
		t.Error("suffix match must respect label boundary")
	}

	now := time.Now()
	q = Query{Since: now.Add(-time.Hour)}
	if q.InRange(now.Add(-2 * time.Hour)) {
		t.Error("expected older article to be out of range")
	}
	if !q.InRange(time.Time{}) {
		t.Error("expected undated article to pass")
	}
}
