package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SummaryModel != "gpt-4o-mini" {
		t.Errorf("SummaryModel = %q, want default", cfg.SummaryModel)
	}
	if cfg.MaxConcurrentFetches != 12 {
		t.Errorf("MaxConcurrentFetches = %d, want 12", cfg.MaxConcurrentFetches)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
summary_model: gpt-4o
request_timeout: 5s
feed_urls:
  - https://a.test/rss
  - https://b.test/rss
cache_capacity: 50
`)
	t.Setenv("REQUEST_TIMEOUT", "9s")
	t.Setenv("LLM_MODELS", "openai/gpt-4o-mini, openai/gpt-4o")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SummaryModel != "gpt-4o" {
		t.Errorf("SummaryModel = %q, want gpt-4o from file", cfg.SummaryModel)
	}
	if cfg.RequestTimeout != 9*time.Second {
		t.Errorf("RequestTimeout = %v, want env override 9s", cfg.RequestTimeout)
	}
	if cfg.CacheCapacity != 50 {
		t.Errorf("CacheCapacity = %d, want 50", cfg.CacheCapacity)
	}
	if diff := cmp.Diff([]string{"https://a.test/rss", "https://b.test/rss"}, cfg.FeedURLs); diff != "" {
		t.Errorf("FeedURLs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"openai/gpt-4o-mini", "openai/gpt-4o"}, cfg.FallbackModels); diff != "" {
		t.Errorf("FallbackModels mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenRouterKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "or-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey() != "or-key" {
		t.Errorf("APIKey = %q, want or-key", cfg.APIKey())
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LLMProvider = "mystery"
	cfg.MaxConcurrentFetches = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "summary_model: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
