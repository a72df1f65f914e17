package models

import (
	"time"
)

// Candidate is a search hit that has not been downloaded yet. Index is the
// relevance rank assigned by the fetcher and is the ordering key for results.
type Candidate struct {
	Index       int       `json:"index"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet,omitempty"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
}

type Article struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Domain      string    `json:"domain"`
	ImageURL    string    `json:"image_url,omitempty"`
	Confidence  float64   `json:"confidence"`
	Strategy    string    `json:"strategy"`
	FetchIndex  int       `json:"fetch_index"`
}

type SummaryResult struct {
	ArticleID   string    `json:"article_id"`
	Summary     string    `json:"summary"`
	KeyPoints   []string  `json:"key_points"`
	Risk        string    `json:"risk,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	Model       string    `json:"model"`
}

type CacheEntry struct {
	ArticleID  string         `json:"article_id"`
	Article    Article        `json:"article"`
	Summary    *SummaryResult `json:"summary,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	LastAccess time.Time      `json:"-"`
}

type Query struct {
	Text    string    `json:"text"`
	Since   time.Time `json:"since,omitempty"`
	Until   time.Time `json:"until,omitempty"`
	Sources []string  `json:"sources,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Expand  bool      `json:"expand,omitempty"`

	// Session identifies the caller. A new query replaces only the run
	// started earlier under the same session.
	Session string `json:"-"`
}

// AllowsDomain reports whether domain passes the query's source allowlist.
// An empty allowlist admits everything; subdomains of an allowed domain pass.
func (q Query) AllowsDomain(domain string) bool {
	if len(q.Sources) == 0 {
		return true
	}
	domain = NormalizeHost(domain)
	for _, allowed := range q.Sources {
		allowed = NormalizeHost(allowed)
		if domain == allowed || hasDomainSuffix(domain, allowed) {
			return true
		}
	}
	return false
}

// InRange reports whether t satisfies Since/Until. Unknown dates pass.
func (q Query) InRange(t time.Time) bool {
	if t.IsZero() {
		return true
	}
	if !q.Since.IsZero() && t.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && t.After(q.Until) {
		return false
	}
	return true
}

type ArticleResult struct {
	Index     int            `json:"index"`
	Candidate Candidate      `json:"candidate"`
	Article   *Article       `json:"article,omitempty"`
	Summary   *SummaryResult `json:"summary,omitempty"`
	Err       error          `json:"-"`
	Reason    string         `json:"error,omitempty"`
	Cached    bool           `json:"cached"`
}

func (r ArticleResult) Failed() bool {
	return r.Err != nil && r.Summary == nil
}

type QueryResult struct {
	RunID      string          `json:"run_id"`
	Query      Query           `json:"query"`
	State      string          `json:"state"`
	Results    []ArticleResult `json:"results"`
	Duplicates int             `json:"duplicates"`
	Failures   int             `json:"failures"`
	Duration   time.Duration   `json:"duration"`
}

// Summaries returns the results that carry a summary, in result order.
func (r *QueryResult) Summaries() []ArticleResult {
	var out []ArticleResult
	for _, res := range r.Results {
		if res.Summary != nil {
			out = append(out, res)
		}
	}
	return out
}
