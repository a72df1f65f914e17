package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ObiAU/newssearch/internal/ai"
	"github.com/ObiAU/newssearch/internal/cache"
	"github.com/ObiAU/newssearch/internal/config"
	"github.com/ObiAU/newssearch/internal/extract"
	"github.com/ObiAU/newssearch/internal/fetcher"
	"github.com/ObiAU/newssearch/internal/logging"
	"github.com/ObiAU/newssearch/internal/models"
	"github.com/ObiAU/newssearch/internal/sources"
)

const relatedPhrases = 3

// Fetcher finds candidates and downloads them.
type Fetcher interface {
	Search(ctx context.Context, q models.Query, extra ...string) ([]models.Candidate, error)
	Fetch(ctx context.Context, candidates []models.Candidate) <-chan fetcher.Page
}

type Deps struct {
	Fetcher    Fetcher
	Extractor  *extract.Extractor
	Renderer   fetcher.Renderer
	Summarizer ai.Summarizer
	Store      cache.Store
	Expander   *ai.Expander
}

// Aggregator runs one query at a time through search, download, extraction,
// deduplication, cache lookup and summarization. Starting a new query
// cancels the one in flight.
type Aggregator struct {
	config *config.Config
	deps   Deps
	log    *slog.Logger

	// cacheModels are the models whose cached summaries are served as is.
	cacheModels map[string]bool

	mu       sync.RWMutex
	state    State
	latestID string
	sessions map[string]activeRun
	lastRun  time.Time
}

type activeRun struct {
	id     string
	cancel context.CancelFunc
}

func New(cfg *config.Config, deps Deps) *Aggregator {
	cacheModels := make(map[string]bool)
	for _, m := range ai.ModelChain(cfg.SummaryModel, cfg.FallbackModels) {
		cacheModels[m] = true
	}
	return &Aggregator{
		config:      cfg,
		deps:        deps,
		log:         logging.New("aggregator"),
		cacheModels: cacheModels,
		state:       StateIdle,
		sessions:    make(map[string]activeRun),
	}
}

// NewFromConfig wires the production pipeline. The caller owns the returned
// aggregator and must Close it.
func NewFromConfig(cfg *config.Config) (*Aggregator, error) {
	client, err := ai.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey() == "" {
		slog.Warn("no LLM credential configured, summaries will fail", "provider", cfg.LLMProvider)
	}

	store, err := cache.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	deps := Deps{
		Fetcher:    fetcher.New(cfg, sources.FromConfig(cfg)),
		Extractor:  extract.New(cfg.MinConfidence),
		Summarizer: ai.NewService(cfg, client),
		Store:      store,
		Expander:   ai.NewExpander(client, cfg.SummaryModel, cfg.NewsSuffix, ai.DefaultExpansionTTL, cfg.LLMTimeout),
	}
	if cfg.RenderJS {
		deps.Renderer = fetcher.NewChromeRenderer(cfg.RequestTimeout * 2)
	}
	return New(cfg, deps), nil
}

// Search runs q to completion, cancelling the run still in flight for the
// same q.Session. Per-article failures are reported inside the result; the
// returned error is non-nil only when no candidates were found or the run
// was cancelled, and the result is still returned in both cases.
func (a *Aggregator) Search(ctx context.Context, q models.Query) (*models.QueryResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	runID := uuid.NewString()

	a.mu.Lock()
	if prev, ok := a.sessions[q.Session]; ok {
		a.log.Debug("superseding run", "session", q.Session, "run", prev.id)
		prev.cancel()
	}
	a.sessions[q.Session] = activeRun{id: runID, cancel: cancel}
	a.latestID = runID
	a.mu.Unlock()

	defer func() {
		cancel()
		a.mu.Lock()
		if cur, ok := a.sessions[q.Session]; ok && cur.id == runID {
			delete(a.sessions, q.Session)
		}
		a.lastRun = time.Now()
		a.mu.Unlock()
	}()

	r := &run{
		agg:   a,
		id:    runID,
		query: q,
		log:   a.log.With("run", runID),
	}
	return r.execute(ctx)
}

// State returns the state of the most recently started run.
func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Aggregator) setState(runID string, s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latestID == runID {
		a.state = s
	}
}

type Stats struct {
	State   State       `json:"state"`
	LastRun time.Time   `json:"last_run,omitempty"`
	Cache   cache.Stats `json:"cache"`
}

func (a *Aggregator) Stats(ctx context.Context) (Stats, error) {
	a.mu.RLock()
	stats := Stats{State: a.state, LastRun: a.lastRun}
	a.mu.RUnlock()

	cacheStats, err := a.deps.Store.Stats(ctx)
	if err != nil {
		return stats, err
	}
	stats.Cache = cacheStats
	return stats, nil
}

// Store exposes the cache for maintenance tasks.
func (a *Aggregator) Store() cache.Store {
	return a.deps.Store
}

// Close cancels every query in flight and releases the cache.
func (a *Aggregator) Close() error {
	a.mu.Lock()
	for _, active := range a.sessions {
		active.cancel()
	}
	a.mu.Unlock()

	if a.deps.Store == nil {
		return nil
	}
	if err := a.deps.Store.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing cache: %w", err)
	}
	return nil
}
