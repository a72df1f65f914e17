package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	LLMProvider     string        `yaml:"llm_provider"`
	LLMBaseURL      string        `yaml:"llm_base_url"`
	SummaryModel    string        `yaml:"summary_model"`
	FallbackModels  []string      `yaml:"llm_models"`
	LLMRPS          float64       `yaml:"llm_rps"`
	LLMTimeout      time.Duration `yaml:"llm_timeout"`
	TokenBudget     int           `yaml:"token_budget"`

	NewsAPIKey        string        `yaml:"news_api_key"`
	CryptoPanicAPIKey string        `yaml:"cryptopanic_api_key"`
	FeedURLs          []string      `yaml:"feed_urls"`
	SearchSources     []string      `yaml:"search_sources"`
	SearchLang        string        `yaml:"search_lang"`
	SearchRegion      string        `yaml:"search_region"`
	NewsSuffix        string        `yaml:"news_suffix"`
	RecencyWindow     time.Duration `yaml:"recency_window"`
	DefaultLimit      int           `yaml:"default_limit"`

	RequestTimeout       time.Duration `yaml:"request_timeout"`
	MaxConcurrentFetches int           `yaml:"max_concurrent_fetches"`
	ExtractWorkers       int           `yaml:"extract_workers"`
	RetryMaxAttempts     int           `yaml:"retry_max_attempts"`
	RetryBaseDelay       time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay        time.Duration `yaml:"retry_max_delay"`
	MinConfidence        float64       `yaml:"min_confidence"`
	DedupeThreshold      float64       `yaml:"dedupe_threshold"`
	RenderJS             bool          `yaml:"render_js"`

	CachePath          string        `yaml:"cache_path"`
	CacheCapacity      int           `yaml:"cache_capacity"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	CacheEvictSchedule string        `yaml:"cache_evict_schedule"`

	TelegramToken      string `yaml:"telegram_bot_token"`
	TelegramWebhookURL string `yaml:"telegram_webhook_url"`
	ServerPort         string `yaml:"server_port"`
	LogLevel           string `yaml:"log_level"`
	LogFormat          string `yaml:"log_format"`
}

func Default() *Config {
	return &Config{
		LLMProvider:          "openai",
		SummaryModel:         "gpt-4o-mini",
		LLMRPS:               2,
		LLMTimeout:           45 * time.Second,
		TokenBudget:          3000,
		SearchSources:        []string{"googlenews", "newsapi", "feeds"},
		SearchLang:           "en",
		SearchRegion:         "US",
		NewsSuffix:           "news",
		RecencyWindow:        72 * time.Hour,
		DefaultLimit:         10,
		RequestTimeout:       15 * time.Second,
		MaxConcurrentFetches: 12,
		ExtractWorkers:       runtime.NumCPU(),
		RetryMaxAttempts:     3,
		RetryBaseDelay:       300 * time.Millisecond,
		RetryMaxDelay:        10 * time.Second,
		MinConfidence:        0.35,
		DedupeThreshold:      0.8,
		CachePath:            defaultCachePath(),
		CacheCapacity:        2000,
		CacheTTL:             7 * 24 * time.Hour,
		CacheEvictSchedule:   "@every 1h",
		ServerPort:           "8080",
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins). A .env file in
// the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = getEnv("NEWSSEARCH_CONFIG", "config.yaml")
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", getEnv("OPENROUTER_API_KEY", cfg.OpenAIAPIKey))
	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.LLMProvider = getEnv("LLM_PROVIDER", cfg.LLMProvider)
	cfg.LLMBaseURL = getEnv("LLM_BASE_URL", getEnv("OPENROUTER_BASE_URL", cfg.LLMBaseURL))
	cfg.SummaryModel = getEnv("SUMMARY_MODEL", cfg.SummaryModel)
	cfg.FallbackModels = getEnvAsList("LLM_MODELS", cfg.FallbackModels)
	cfg.LLMRPS = getEnvAsFloat("LLM_RPS", cfg.LLMRPS)
	cfg.LLMTimeout = getEnvAsDuration("LLM_TIMEOUT", cfg.LLMTimeout)
	cfg.TokenBudget = getEnvAsInt("TOKEN_BUDGET", cfg.TokenBudget)

	cfg.NewsAPIKey = getEnv("NEWS_API_KEY", cfg.NewsAPIKey)
	cfg.CryptoPanicAPIKey = getEnv("CRYPTOPANIC_API_KEY", cfg.CryptoPanicAPIKey)
	cfg.FeedURLs = getEnvAsList("FEED_URLS", cfg.FeedURLs)
	cfg.SearchSources = getEnvAsList("SEARCH_SOURCES", cfg.SearchSources)
	cfg.SearchLang = getEnv("SEARCH_LANG", cfg.SearchLang)
	cfg.SearchRegion = getEnv("SEARCH_REGION", cfg.SearchRegion)
	cfg.NewsSuffix = getEnv("NEWS_SUFFIX", cfg.NewsSuffix)
	cfg.RecencyWindow = getEnvAsDuration("RECENCY_WINDOW", cfg.RecencyWindow)
	cfg.DefaultLimit = getEnvAsInt("DEFAULT_LIMIT", cfg.DefaultLimit)

	cfg.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.MaxConcurrentFetches = getEnvAsInt("MAX_CONCURRENT_FETCHES", cfg.MaxConcurrentFetches)
	cfg.ExtractWorkers = getEnvAsInt("EXTRACT_WORKERS", cfg.ExtractWorkers)
	cfg.RetryMaxAttempts = getEnvAsInt("RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	cfg.RetryBaseDelay = getEnvAsDuration("RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	cfg.RetryMaxDelay = getEnvAsDuration("RETRY_MAX_DELAY", cfg.RetryMaxDelay)
	cfg.MinConfidence = getEnvAsFloat("MIN_CONFIDENCE", cfg.MinConfidence)
	cfg.DedupeThreshold = getEnvAsFloat("DEDUPE_THRESHOLD", cfg.DedupeThreshold)
	cfg.RenderJS = getEnvAsBool("RENDER_JS", cfg.RenderJS)

	cfg.CachePath = getEnv("CACHE_PATH", cfg.CachePath)
	cfg.CacheCapacity = getEnvAsInt("CACHE_CAPACITY", cfg.CacheCapacity)
	cfg.CacheTTL = getEnvAsDuration("CACHE_TTL", cfg.CacheTTL)
	cfg.CacheEvictSchedule = getEnv("CACHE_EVICT_SCHEDULE", cfg.CacheEvictSchedule)

	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.TelegramToken)
	cfg.TelegramWebhookURL = getEnv("TELEGRAM_WEBHOOK_URL", cfg.TelegramWebhookURL)
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.LLMProvider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("unknown llm_provider %q", c.LLMProvider))
	}
	if c.SummaryModel == "" {
		errs = append(errs, errors.New("summary_model must be set"))
	}
	if c.MaxConcurrentFetches <= 0 {
		errs = append(errs, errors.New("max_concurrent_fetches must be positive"))
	}
	if c.ExtractWorkers <= 0 {
		errs = append(errs, errors.New("extract_workers must be positive"))
	}
	if c.RetryMaxAttempts <= 0 {
		errs = append(errs, errors.New("retry_max_attempts must be positive"))
	}
	if c.RequestTimeout <= 0 || c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.TokenBudget < 100 {
		errs = append(errs, errors.New("token_budget must be at least 100"))
	}
	if c.CacheCapacity <= 0 {
		errs = append(errs, errors.New("cache_capacity must be positive"))
	}
	if c.DedupeThreshold <= 0 || c.DedupeThreshold > 1 {
		errs = append(errs, errors.New("dedupe_threshold must be in (0, 1]"))
	}
	return errors.Join(errs...)
}

// APIKey returns the credential for the configured provider.
func (c *Config) APIKey() string {
	if c.LLMProvider == "anthropic" {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".newssearch", "cache.db")
	}
	return filepath.Join(home, ".newssearch", "cache.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
