package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ObiAU/newssearch/internal/models"
)

const treeNewsBaseURL = "https://news.treeofalpha.com"

// TreeNewsClient matches query terms against the Tree of Alpha headline
// stream. Headlines without a link are skipped since there is nothing to read.
type TreeNewsClient struct {
	baseURL string
	client  *http.Client
}

type TreeNewsMessage struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Source      string `json:"source,omitempty"`
	URL         string `json:"url,omitempty"`
	RawTime     int64  `json:"time"`
	Suggestions []struct {
		Coin string `json:"coin"`
	} `json:"suggestions,omitempty"`
}

func NewTreeNewsClient(timeout time.Duration) *TreeNewsClient {
	return &TreeNewsClient{
		baseURL: treeNewsBaseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithBaseURL points the client at another host, used by tests.
func (c *TreeNewsClient) WithBaseURL(baseURL string) *TreeNewsClient {
	c.baseURL = baseURL
	return c
}

func (c *TreeNewsClient) SearchArticles(ctx context.Context, phrase string, limit int) ([]models.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/news", nil)
	if err != nil {
		return nil, err
	}

	resp, err := do(c.client, c.GetName(), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var messages []TreeNewsMessage
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, classify(c.GetName(), err)
	}

	terms := queryTerms(phrase)
	var candidates []models.Candidate
	for _, msg := range messages {
		if len(candidates) >= limit {
			break
		}

		coins := make([]string, len(msg.Suggestions))
		for i, s := range msg.Suggestions {
			coins[i] = s.Coin
		}
		if msg.URL == "" || !matchesAny(msg.Title+" "+strings.Join(coins, " "), terms) {
			continue
		}

		candidates = append(candidates, models.Candidate{
			URL:         msg.URL,
			Title:       msg.Title,
			Snippet:     msg.Source,
			Source:      c.GetName(),
			PublishedAt: time.UnixMilli(msg.RawTime).UTC(),
		})
	}

	return candidates, nil
}

func (c *TreeNewsClient) GetName() string {
	return "treenews"
}
