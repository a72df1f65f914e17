package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/ObiAU/newssearch/internal/models"
)

const cryptoPanicBaseURL = "https://cryptopanic.com"

// CryptoPanicClient reads the latest public CryptoPanic posts. The API has no
// free-text search, so posts are matched against the query terms locally.
type CryptoPanicClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type CryptoPanicResponse struct {
	Results []struct {
		ID        int       `json:"id"`
		Kind      string    `json:"kind"`
		Title     string    `json:"title"`
		URL       string    `json:"url"`
		Published time.Time `json:"published_at"`
		Source    struct {
			Title  string `json:"title"`
			Domain string `json:"domain"`
		} `json:"source"`
	} `json:"results"`
}

func NewCryptoPanicClient(apiKey string, timeout time.Duration) *CryptoPanicClient {
	return &CryptoPanicClient{
		apiKey:  apiKey,
		baseURL: cryptoPanicBaseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithBaseURL points the client at another host, used by tests.
func (c *CryptoPanicClient) WithBaseURL(baseURL string) *CryptoPanicClient {
	c.baseURL = baseURL
	return c
}

func (c *CryptoPanicClient) SearchArticles(ctx context.Context, phrase string, limit int) ([]models.Candidate, error) {
	params := url.Values{}
	params.Set("auth_token", c.apiKey)
	params.Set("public", "true")
	params.Set("kind", "news")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/posts/?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := do(c.client, c.GetName(), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResp CryptoPanicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, classify(c.GetName(), err)
	}

	terms := queryTerms(phrase)
	var candidates []models.Candidate
	for _, result := range apiResp.Results {
		if len(candidates) >= limit {
			break
		}
		if result.URL == "" || !matchesAny(result.Title, terms) {
			continue
		}
		candidates = append(candidates, models.Candidate{
			URL:         result.URL,
			Title:       result.Title,
			Snippet:     result.Source.Title,
			Source:      c.GetName(),
			PublishedAt: result.Published.UTC(),
		})
	}

	return candidates, nil
}

func (c *CryptoPanicClient) GetName() string {
	return "cryptopanic"
}
