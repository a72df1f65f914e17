package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ObiAU/newssearch/internal/aggregator"
	"github.com/ObiAU/newssearch/internal/models"
)

type fakeBackend struct {
	got    models.Query
	result *models.QueryResult
	err    error
}

func (b *fakeBackend) Search(ctx context.Context, q models.Query) (*models.QueryResult, error) {
	b.got = q
	return b.result, b.err
}

func (b *fakeBackend) Stats(ctx context.Context) (aggregator.Stats, error) {
	return aggregator.Stats{State: aggregator.StateComplete}, nil
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, New("0", &fakeBackend{}, nil).Routes(), http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != "healthy" {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestSearchParsesQuery(t *testing.T) {
	backend := &fakeBackend{result: &models.QueryResult{RunID: "r1", State: "complete"}}
	h := New("0", backend, nil).Routes()

	rec := do(t, h, http.MethodGet, "/api/search?q=elections&limit=5&until=2026-10-19&sources=bbc.co.uk,+reuters.com&expand=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	want := models.Query{
		Text:    "elections",
		Limit:   5,
		Until:   time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		Sources: []string{"bbc.co.uk", "reuters.com"},
		Expand:  true,
		Session: "http:192.0.2.1",
	}
	if diff := cmp.Diff(want, backend.got); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}

	var res models.QueryResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.RunID != "r1" {
		t.Errorf("decoded %+v, err %v", res, err)
	}
}

func TestSearchSessionParameter(t *testing.T) {
	backend := &fakeBackend{result: &models.QueryResult{}}
	h := New("0", backend, nil).Routes()

	if rec := do(t, h, http.MethodGet, "/api/search?q=ferry&session=tab-7"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if backend.got.Session != "http:tab-7" {
		t.Errorf("Session = %q, want http:tab-7", backend.got.Session)
	}
}

func TestSearchSinceDuration(t *testing.T) {
	backend := &fakeBackend{result: &models.QueryResult{}}
	do(t, New("0", backend, nil).Routes(), http.MethodGet, "/api/search?q=x&since=48h")

	age := time.Since(backend.got.Since)
	if age < 47*time.Hour || age > 49*time.Hour {
		t.Errorf("since = %v, want about 48h ago", backend.got.Since)
	}
}

func TestSearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"missing q", "/api/search", nil, http.StatusBadRequest},
		{"bad limit", "/api/search?q=x&limit=-1", nil, http.StatusBadRequest},
		{"bad until", "/api/search?q=x&until=tomorrow", nil, http.StatusBadRequest},
		{"no candidates", "/api/search?q=x", models.ErrNoCandidates, http.StatusNotFound},
		{"cancelled", "/api/search?q=x", models.NewError(models.KindCancelled, "search", "", context.Canceled), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{result: &models.QueryResult{}, err: tt.err}
			rec := do(t, New("0", backend, nil).Routes(), http.MethodGet, tt.target)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestWebhook(t *testing.T) {
	rec := do(t, New("0", &fakeBackend{}, nil).Routes(), http.MethodPost, "/webhook")
	if rec.Code != http.StatusNotFound {
		t.Errorf("without bot: status = %d, want 404", rec.Code)
	}

	called := false
	hook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	rec = do(t, New("0", &fakeBackend{}, hook).Routes(), http.MethodPost, "/webhook")
	if rec.Code != http.StatusOK || !called {
		t.Errorf("with bot: status = %d called = %v", rec.Code, called)
	}

	rec = do(t, New("0", &fakeBackend{}, hook).Routes(), http.MethodGet, "/webhook")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET webhook: status = %d, want 405", rec.Code)
	}
}

func TestStats(t *testing.T) {
	rec := do(t, New("0", &fakeBackend{}, nil).Routes(), http.MethodGet, "/stats")
	var stats aggregator.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.State != aggregator.StateComplete {
		t.Errorf("state = %q", stats.State)
	}
}
