package sources

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ObiAU/newssearch/internal/models"
)

const googleNewsBaseURL = "https://news.google.com"

// GoogleNewsClient searches the public Google News RSS endpoint.
type GoogleNewsClient struct {
	language string
	region   string
	baseURL  string
	parser   *gofeed.Parser
}

func NewGoogleNewsClient(language, region string, timeout time.Duration) *GoogleNewsClient {
	return &GoogleNewsClient{
		language: language,
		region:   region,
		baseURL:  googleNewsBaseURL,
		parser:   newFeedParser(timeout),
	}
}

func (c *GoogleNewsClient) WithBaseURL(baseURL string) *GoogleNewsClient {
	c.baseURL = baseURL
	return c
}

func (c *GoogleNewsClient) SearchArticles(ctx context.Context, phrase string, limit int) ([]models.Candidate, error) {
	params := url.Values{}
	params.Set("q", phrase)
	if c.language != "" {
		params.Set("hl", c.language)
	}
	if c.region != "" {
		params.Set("gl", c.region)
		params.Set("ceid", c.region+":"+c.language)
	}

	feed, err := c.parser.ParseURLWithContext(c.baseURL+"/rss/search?"+params.Encode(), ctx)
	if err != nil {
		return nil, classify(c.GetName(), err)
	}

	candidates := make([]models.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if len(candidates) >= limit {
			break
		}
		candidate := itemCandidate(item, c.GetName())
		if candidate.URL == "" {
			continue
		}
		// Titles come as "Headline - Outlet".
		if idx := strings.LastIndex(candidate.Title, " - "); idx > 0 {
			candidate.Title = candidate.Title[:idx]
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

func (c *GoogleNewsClient) GetName() string {
	return "googlenews"
}
