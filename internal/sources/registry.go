package sources

import (
	"log/slog"

	"github.com/ObiAU/newssearch/internal/config"
	"github.com/ObiAU/newssearch/internal/models"
)

// FromConfig builds the enabled sources in configured priority order.
// Sources missing their credentials or inputs are skipped.
func FromConfig(cfg *config.Config) []models.NewsSource {
	var out []models.NewsSource
	for _, name := range cfg.SearchSources {
		switch name {
		case "googlenews":
			out = append(out, NewGoogleNewsClient(cfg.SearchLang, cfg.SearchRegion, cfg.RequestTimeout))
		case "newsapi":
			if cfg.NewsAPIKey == "" {
				slog.Debug("newsapi disabled: NEWS_API_KEY not set")
				continue
			}
			out = append(out, NewNewsAPIClient(cfg.NewsAPIKey, cfg.SearchLang, cfg.RequestTimeout))
		case "feeds":
			if len(cfg.FeedURLs) == 0 {
				continue
			}
			out = append(out, NewFeedClient(cfg.FeedURLs, cfg.RequestTimeout))
		case "cryptopanic":
			if cfg.CryptoPanicAPIKey == "" {
				slog.Debug("cryptopanic disabled: CRYPTOPANIC_API_KEY not set")
				continue
			}
			out = append(out, NewCryptoPanicClient(cfg.CryptoPanicAPIKey, cfg.RequestTimeout))
		case "treenews":
			out = append(out, NewTreeNewsClient(cfg.RequestTimeout))
		default:
			slog.Warn("unknown search source", "source", name)
		}
	}
	return out
}
