package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ObiAU/newssearch/internal/models"
	"github.com/ObiAU/newssearch/internal/retry"
)

const newsAPIBaseURL = "https://newsapi.org"

type NewsAPIClient struct {
	apiKey   string
	language string
	baseURL  string
	client   *http.Client
}

type NewsAPIResponse struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"source"`
		Author      string    `json:"author"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		URLToImage  string    `json:"urlToImage"`
		PublishedAt time.Time `json:"publishedAt"`
		Content     string    `json:"content"`
	} `json:"articles"`
}

func NewNewsAPIClient(apiKey, language string, timeout time.Duration) *NewsAPIClient {
	return &NewsAPIClient{
		apiKey:   apiKey,
		language: language,
		baseURL:  newsAPIBaseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithBaseURL points the client at another host, used by tests.
func (c *NewsAPIClient) WithBaseURL(baseURL string) *NewsAPIClient {
	c.baseURL = baseURL
	return c
}

func (c *NewsAPIClient) SearchArticles(ctx context.Context, phrase string, limit int) ([]models.Candidate, error) {
	params := url.Values{}
	params.Set("q", phrase)
	params.Set("pageSize", strconv.Itoa(limit))
	params.Set("sortBy", "relevancy")
	if c.language != "" {
		params.Set("language", c.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(c.GetName(), err)
	}
	defer resp.Body.Close()

	var apiResp NewsAPIResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&apiResp)

	if err := retry.StatusError(c.GetName(), "", resp.StatusCode, resp.Header.Get("Retry-After")); err != nil {
		return nil, fmt.Errorf("%w: %s %s", err, apiResp.Code, apiResp.Message)
	}
	if decodeErr != nil {
		return nil, classify(c.GetName(), decodeErr)
	}
	if apiResp.Status != "ok" {
		return nil, classify(c.GetName(), fmt.Errorf("newsapi error: %s %s", apiResp.Code, apiResp.Message))
	}

	candidates := make([]models.Candidate, 0, len(apiResp.Articles))
	for _, apiArticle := range apiResp.Articles {
		if apiArticle.URL == "" || apiArticle.Title == "[Removed]" {
			continue
		}

		snippet := apiArticle.Description
		if snippet == "" {
			snippet = apiArticle.Content
		}

		candidates = append(candidates, models.Candidate{
			URL:         apiArticle.URL,
			Title:       apiArticle.Title,
			Snippet:     snippet,
			Source:      c.GetName(),
			PublishedAt: apiArticle.PublishedAt,
			ImageURL:    apiArticle.URLToImage,
		})
	}

	return candidates, nil
}

func (c *NewsAPIClient) GetName() string {
	return "newsapi"
}
