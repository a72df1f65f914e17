package sources

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ObiAU/newssearch/internal/logging"
	"github.com/ObiAU/newssearch/internal/models"
)

// FeedClient searches a fixed list of RSS/Atom feeds by matching query terms
// against item titles and descriptions.
type FeedClient struct {
	urls   []string
	parser *gofeed.Parser
	log    *slog.Logger
}

func NewFeedClient(urls []string, timeout time.Duration) *FeedClient {
	return &FeedClient{
		urls:   urls,
		parser: newFeedParser(timeout),
		log:    logging.New("sources.feeds"),
	}
}

func (c *FeedClient) SearchArticles(ctx context.Context, phrase string, limit int) ([]models.Candidate, error) {
	terms := queryTerms(phrase)

	var candidates []models.Candidate
	for _, feedURL := range c.urls {
		if len(candidates) >= limit {
			break
		}

		feed, err := c.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			if ctx.Err() != nil {
				return candidates, ctx.Err()
			}
			c.log.Warn("feed fetch failed", "feed", feedURL, "error", err)
			continue
		}

		for _, item := range feed.Items {
			if len(candidates) >= limit {
				break
			}
			if !matchesAny(item.Title+" "+item.Description, terms) {
				continue
			}
			candidate := itemCandidate(item, c.GetName())
			if candidate.URL == "" {
				continue
			}
			candidates = append(candidates, candidate)
		}
	}

	return candidates, nil
}

func (c *FeedClient) GetName() string {
	return "feeds"
}
