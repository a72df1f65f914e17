package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ObiAU/newssearch/internal/dedupe"
	"github.com/ObiAU/newssearch/internal/extract"
	"github.com/ObiAU/newssearch/internal/fetcher"
	"github.com/ObiAU/newssearch/internal/models"
)

type run struct {
	agg   *Aggregator
	id    string
	query models.Query
	log   *slog.Logger

	mu    sync.Mutex
	slots map[int]*models.ArticleResult
}

// pending is an article that needs a summary, with the cache entry it will
// replace, if any.
type pending struct {
	article  models.Article
	previous *models.CacheEntry
}

func (r *run) transition(s State) {
	r.agg.setState(r.id, s)
	r.log.Debug("state", "state", string(s))
}

func (r *run) execute(ctx context.Context) (*models.QueryResult, error) {
	started := time.Now()
	result := &models.QueryResult{RunID: r.id, Query: r.query}
	finish := func(s State) {
		r.transition(s)
		result.State = string(s)
		result.Duration = time.Since(started)
	}

	r.transition(StateFetching)
	var extra []string
	if r.query.Expand && r.agg.deps.Expander != nil {
		extra = r.agg.deps.Expander.Related(ctx, r.query.Text, relatedPhrases)
	}
	candidates, err := r.agg.deps.Fetcher.Search(ctx, r.query, extra...)
	if err != nil {
		finish(StateFailed)
		if ctx.Err() != nil {
			return result, models.NewError(models.KindCancelled, "search", "", ctx.Err())
		}
		r.log.Warn("search found nothing", "query", r.query.Text, "error", err)
		return result, err
	}
	r.log.Info("search complete", "query", r.query.Text, "candidates", len(candidates))

	r.slots = make(map[int]*models.ArticleResult, len(candidates))
	for _, c := range candidates {
		r.slots[c.Index] = &models.ArticleResult{Index: c.Index, Candidate: c}
	}

	articles := r.extractAll(ctx, candidates)

	r.transition(StateDeduping)
	kept, dropped := dedupe.Dedupe(articles, r.agg.config.DedupeThreshold)
	r.dropDuplicates(articles, kept)
	result.Duplicates = dropped

	r.transition(StateCacheCheck)
	todo := r.checkCache(ctx, kept)

	r.transition(StateSummarizing)
	r.summarizeAll(ctx, todo)

	result.Results = r.collect()
	for _, res := range result.Results {
		if res.Failed() {
			result.Failures++
		}
	}

	if ctx.Err() != nil {
		finish(StatePartialFailure)
		return result, models.NewError(models.KindCancelled, "search", "", ctx.Err())
	}

	switch {
	case len(result.Results) > 0 && result.Failures == len(result.Results):
		finish(StateFailed)
	case result.Failures > 0:
		finish(StatePartialFailure)
	default:
		finish(StateComplete)
	}

	if removed, err := r.agg.deps.Store.Evict(ctx); err != nil {
		r.log.Warn("cache eviction failed", "error", err)
	} else if removed > 0 {
		r.log.Debug("evicted cache entries", "removed", removed)
	}

	r.log.Info("query finished",
		"state", result.State,
		"results", len(result.Results),
		"failures", result.Failures,
		"duplicates", result.Duplicates,
		"duration", result.Duration)
	return result, nil
}

// extractAll consumes downloaded pages as they arrive and extracts them on a
// bounded pool.
func (r *run) extractAll(ctx context.Context, candidates []models.Candidate) []models.Article {
	pages := r.agg.deps.Fetcher.Fetch(ctx, candidates)

	workers := r.agg.config.ExtractWorkers
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)

	var (
		mu       sync.Mutex
		articles []models.Article
		first    = true
	)
	for page := range pages {
		if first {
			r.transition(StateExtracting)
			first = false
		}
		g.Go(func() error {
			article, err := r.extractPage(ctx, page)
			if err != nil {
				r.fail(page.Candidate.Index, err)
				return nil
			}
			r.withSlot(page.Candidate.Index, func(slot *models.ArticleResult) {
				slot.Article = &article
			})
			mu.Lock()
			articles = append(articles, article)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return articles
}

func (r *run) extractPage(ctx context.Context, page fetcher.Page) (models.Article, error) {
	c := page.Candidate
	if page.Err != nil {
		return models.Article{}, page.Err
	}

	pageURL := c.URL
	if page.FinalURL != "" {
		pageURL = page.FinalURL
	}

	article, err := r.agg.deps.Extractor.Extract(page.HTML, pageURL)
	if extract.IsEmpty(err) && r.agg.deps.Renderer != nil && ctx.Err() == nil {
		r.log.Debug("rendering page", "url", pageURL)
		html, renderErr := r.agg.deps.Renderer.Render(ctx, pageURL)
		if renderErr != nil {
			r.log.Debug("render failed", "url", pageURL, "error", renderErr)
		} else {
			article, err = r.agg.deps.Extractor.Extract(html, pageURL)
		}
	}
	switch {
	case err == nil:
	case extract.IsLowConfidence(err):
		r.log.Debug("accepting low confidence extraction", "url", pageURL, "error", err)
	default:
		return models.Article{}, err
	}

	if article.Title == "" {
		article.Title = c.Title
	}
	if article.PublishedAt.IsZero() {
		article.PublishedAt = c.PublishedAt
	}
	if article.ImageURL == "" {
		article.ImageURL = c.ImageURL
	}
	article.FetchIndex = c.Index
	return article, nil
}

func (r *run) dropDuplicates(all, kept []models.Article) {
	keep := make(map[int]bool, len(kept))
	for _, a := range kept {
		keep[a.FetchIndex] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range all {
		if !keep[a.FetchIndex] {
			r.log.Debug("dropping duplicate", "url", a.URL)
			delete(r.slots, a.FetchIndex)
		}
	}
}

// checkCache fills slots whose summary was cached by any configured model
// and returns the rest for summarization.
func (r *run) checkCache(ctx context.Context, kept []models.Article) []pending {
	var todo []pending
	for _, article := range kept {
		if r.slot(article.FetchIndex) == nil {
			continue
		}

		entry, ok, err := r.agg.deps.Store.Get(ctx, article.ID)
		if err != nil {
			r.log.Warn("cache lookup failed", "id", article.ID, "error", err)
			ok = false
		}
		if ok && entry.Summary != nil && r.agg.cacheModels[entry.Summary.Model] {
			r.withSlot(article.FetchIndex, func(slot *models.ArticleResult) {
				slot.Summary = entry.Summary
				slot.Cached = true
			})
			continue
		}

		p := pending{article: article}
		if ok {
			p.previous = &entry
		}
		todo = append(todo, p)
	}
	r.log.Debug("cache checked", "hits", len(kept)-len(todo), "misses", len(todo))
	return todo
}

func (r *run) summarizeAll(ctx context.Context, todo []pending) {
	limit := r.agg.config.MaxConcurrentFetches
	if limit <= 0 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for _, p := range todo {
		g.Go(func() error {
			r.summarize(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *run) summarize(ctx context.Context, p pending) {
	summary, err := r.agg.deps.Summarizer.Summarize(ctx, p.article)
	if err != nil {
		r.fail(p.article.FetchIndex, err)
	} else {
		r.withSlot(p.article.FetchIndex, func(slot *models.ArticleResult) {
			slot.Summary = &summary
		})
	}

	// A cancelled run leaves the cache untouched.
	if ctx.Err() != nil || errors.Is(err, models.ErrCancelled) {
		return
	}

	entry := models.CacheEntry{ArticleID: p.article.ID, Article: p.article}
	if p.previous != nil {
		entry.CreatedAt = p.previous.CreatedAt
		entry.Summary = p.previous.Summary
	}
	if err == nil {
		entry.Summary = &summary
	}
	if putErr := r.agg.deps.Store.Put(ctx, entry); putErr != nil {
		r.log.Warn("cache write failed", "id", p.article.ID, "error", putErr)
	}
}

func (r *run) slot(index int) *models.ArticleResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[index]
}

func (r *run) withSlot(index int, fn func(*models.ArticleResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, ok := r.slots[index]; ok {
		fn(slot)
	}
}

func (r *run) fail(index int, err error) {
	r.withSlot(index, func(slot *models.ArticleResult) {
		slot.Err = err
		slot.Reason = models.Reason(err)
	})
	r.log.Debug("article failed", "index", index, "error", err)
}

// collect returns the surviving slots ordered by candidate rank.
func (r *run) collect() []models.ArticleResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ArticleResult, 0, len(r.slots))
	for _, slot := range r.slots {
		out = append(out, *slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
