package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ObiAU/newssearch/internal/config"
	"github.com/ObiAU/newssearch/internal/models"
	"github.com/ObiAU/newssearch/internal/sources"
)

type fakeSource struct {
	name       string
	candidates []models.Candidate
	err        error
	phrases    []string
}

func (s *fakeSource) SearchArticles(ctx context.Context, phrase string, limit int) ([]models.Candidate, error) {
	s.phrases = append(s.phrases, phrase)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.candidates) > limit {
		return s.candidates[:limit], nil
	}
	return s.candidates, nil
}

func (s *fakeSource) GetName() string { return s.name }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RequestTimeout = 200 * time.Millisecond
	cfg.RetryMaxAttempts = 3
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryMaxDelay = 2 * time.Millisecond
	cfg.MaxConcurrentFetches = 4
	return cfg
}

func urls(cs []models.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.URL
	}
	return out
}

func TestSearchMergesInPriorityOrder(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	first := &fakeSource{name: "a", candidates: []models.Candidate{
		{URL: "https://one.test/1", PublishedAt: now.Add(-time.Hour)},
		{URL: "https://two.test/2"},
	}}
	second := &fakeSource{name: "b", candidates: []models.Candidate{
		{URL: "https://www.one.test/1/?utm_source=feed"},
		{URL: "https://three.test/3", PublishedAt: now.Add(-2 * time.Hour)},
	}}

	f := New(testConfig(), []models.NewsSource{first, second})
	f.now = func() time.Time { return now }

	got, err := f.Search(context.Background(), models.Query{Text: "elections", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// Recent first (one, three), then undated (two); duplicate of one dropped.
	want := []string{"https://one.test/1", "https://three.test/3", "https://two.test/2"}
	if diff := cmp.Diff(want, urls(got)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	for i, c := range got {
		if c.Index != i {
			t.Errorf("candidate %d has Index %d", i, c.Index)
		}
	}
	if first.phrases[0] != "elections news" {
		t.Errorf("short query not shaped: %q", first.phrases[0])
	}
}

func TestSearchAppliesFiltersAndLimit(t *testing.T) {
	now := time.Now()
	src := &fakeSource{name: "a", candidates: []models.Candidate{
		{URL: "https://keep.test/1", PublishedAt: now},
		{URL: "https://other.test/2", PublishedAt: now},
		{URL: "https://keep.test/old", PublishedAt: now.Add(-72 * time.Hour)},
		{URL: "https://keep.test/3", PublishedAt: now},
		{URL: "https://keep.test/4", PublishedAt: now},
	}}
	f := New(testConfig(), []models.NewsSource{src})

	got, err := f.Search(context.Background(), models.Query{
		Text:    "three word query",
		Limit:   2,
		Sources: []string{"keep.test"},
		Since:   now.Add(-24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if diff := cmp.Diff([]string{"https://keep.test/1", "https://keep.test/3"}, urls(got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if src.phrases[0] != "three word query" {
		t.Errorf("long query should not be shaped, got %q", src.phrases[0])
	}
}

func TestSearchNoCandidates(t *testing.T) {
	f := New(testConfig(), []models.NewsSource{
		&fakeSource{name: "down", err: errors.New("boom")},
		&fakeSource{name: "empty"},
	})
	_, err := f.Search(context.Background(), models.Query{Text: "nothing"})
	if !errors.Is(err, models.ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}
}

const searchRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Search</title>
<item><title>Harbour strike ends - Daily Planet</title><link>https://planet.test/strike</link>
<pubDate>Mon, 19 Oct 2026 09:00:00 GMT</pubDate></item>
</channel></rss>`

func TestSearchRetriesTransientSourceFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, searchRSS)
	}))
	defer srv.Close()

	cfg := testConfig()
	src := sources.NewGoogleNewsClient("en", "US", cfg.RequestTimeout).WithBaseURL(srv.URL)
	f := New(cfg, []models.NewsSource{src})

	got, err := f.Search(context.Background(), models.Query{Text: "harbour strike"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("source hit %d times, want 2", hits.Load())
	}
	if diff := cmp.Diff([]string{"https://planet.test/strike"}, urls(got)); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchDoesNotRetryPermanentSourceFailure(t *testing.T) {
	down := &fakeSource{name: "down", err: models.NewError(models.KindNetworkPermanent, "down", "", errors.New("status 401"))}
	flaky := &fakeSource{name: "flaky", err: models.NewError(models.KindNetworkTransient, "flaky", "", errors.New("status 502"))}
	f := New(testConfig(), []models.NewsSource{down, flaky})

	_, err := f.Search(context.Background(), models.Query{Text: "closed doors today"})
	if !errors.Is(err, models.ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}
	if len(down.phrases) != 1 {
		t.Errorf("permanent failure tried %d times, want 1", len(down.phrases))
	}
	if len(flaky.phrases) != 3 {
		t.Errorf("transient failure tried %d times, want 3", len(flaky.phrases))
	}
}

func TestSearchExtraPhrasesTopUp(t *testing.T) {
	src := &fakeSource{name: "a", candidates: []models.Candidate{{URL: "https://a.test/1"}}}
	f := New(testConfig(), []models.NewsSource{src})

	_, err := f.Search(context.Background(), models.Query{Text: "one two three", Limit: 5}, "related phrase")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if diff := cmp.Diff([]string{"one two three", "related phrase"}, src.phrases); diff != "" {
		t.Errorf("phrases mismatch (-want +got):\n%s", diff)
	}
}

func pageServer(t *testing.T, flakyHits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>hello</p></body></html>")
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(flakyHits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>recovered</body></html>")
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4")
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchClassifiesOutcomes(t *testing.T) {
	var flakyHits int32
	srv := pageServer(t, &flakyHits)
	f := New(testConfig(), nil)

	candidates := []models.Candidate{
		{Index: 0, URL: srv.URL + "/ok"},
		{Index: 1, URL: srv.URL + "/flaky"},
		{Index: 2, URL: srv.URL + "/missing"},
		{Index: 3, URL: srv.URL + "/pdf"},
		{Index: 4, URL: srv.URL + "/slow"},
	}

	pages := make(map[int]Page)
	for page := range f.Fetch(context.Background(), candidates) {
		if _, dup := pages[page.Candidate.Index]; dup {
			t.Fatalf("candidate %d produced two pages", page.Candidate.Index)
		}
		pages[page.Candidate.Index] = page
	}
	if len(pages) != len(candidates) {
		t.Fatalf("got %d pages, want %d", len(pages), len(candidates))
	}

	if pages[0].Err != nil || pages[0].HTML == "" {
		t.Errorf("ok page: err=%v html=%q", pages[0].Err, pages[0].HTML)
	}
	if pages[1].Err != nil || atomic.LoadInt32(&flakyHits) != 3 {
		t.Errorf("flaky page: err=%v hits=%d", pages[1].Err, flakyHits)
	}
	if !errors.Is(pages[2].Err, models.ErrNetworkPermanent) {
		t.Errorf("404 should be permanent, got %v", pages[2].Err)
	}
	if !errors.Is(pages[3].Err, models.ErrNetworkPermanent) {
		t.Errorf("pdf should be permanent, got %v", pages[3].Err)
	}
	if !errors.Is(pages[4].Err, models.ErrNetworkTransient) {
		t.Errorf("timeout should be transient, got %v", pages[4].Err)
	}
}

func TestFetchCancelled(t *testing.T) {
	var hits int32
	srv := pageServer(t, &hits)
	f := New(testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	count := 0
	for page := range f.Fetch(ctx, []models.Candidate{{URL: srv.URL + "/ok"}, {Index: 1, URL: srv.URL + "/slow"}}) {
		count++
		if !page.IsCancelled() {
			t.Errorf("expected cancelled page, got %v", page.Err)
		}
	}
	if count != 2 {
		t.Errorf("got %d pages, want 2", count)
	}
}
