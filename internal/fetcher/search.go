package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ObiAU/newssearch/internal/models"
)

// Search asks every source for candidates matching q and merges them into a
// single relevance-ordered list. Extra phrases (for example related keywords)
// are searched after the primary phrase and only top the list up.
func (f *Fetcher) Search(ctx context.Context, q models.Query, extra ...string) ([]models.Candidate, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, errors.New("empty query")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = f.defaultLimit
	}

	phrases := append([]string{f.shapePhrase(q.Text)}, extra...)

	var (
		merged []models.Candidate
		seen   = make(map[string]bool)
		errs   []error
	)
	for _, phrase := range phrases {
		perSource, phraseErrs := f.searchSources(ctx, phrase, limit*2)
		errs = append(errs, phraseErrs...)
		for _, batch := range perSource {
			for _, c := range batch {
				key := models.CanonicalURL(c.URL)
				if key == "" || seen[key] {
					continue
				}
				if !q.InRange(c.PublishedAt) || !q.AllowsDomain(models.DomainOf(c.URL)) {
					continue
				}
				seen[key] = true
				merged = append(merged, c)
			}
		}
		if len(merged) >= limit {
			break
		}
	}

	if ctx.Err() != nil {
		return nil, models.NewError(models.KindCancelled, "search", "", ctx.Err())
	}
	if len(merged) == 0 {
		if len(errs) > 0 {
			return nil, fmt.Errorf("%w: %w", models.ErrNoCandidates, errors.Join(errs...))
		}
		return nil, models.ErrNoCandidates
	}

	ranked := rankByRecency(merged, f.recencyWindow, f.now())
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].Index = i
	}
	return ranked, nil
}

// searchSources queries all sources concurrently and returns their results
// indexed by source priority. Each source call runs under the retry policy.
func (f *Fetcher) searchSources(ctx context.Context, phrase string, limit int) ([][]models.Candidate, []error) {
	results := make([][]models.Candidate, len(f.sources))
	errs := make([]error, len(f.sources))

	var wg sync.WaitGroup
	for i, source := range f.sources {
		wg.Add(1)
		go func(i int, src models.NewsSource) {
			defer wg.Done()

			var candidates []models.Candidate
			err := f.policy.Do(ctx, func(ctx context.Context, attempt int) error {
				var err error
				candidates, err = src.SearchArticles(ctx, phrase, limit)
				return err
			})
			if err != nil {
				f.log.Warn("source search failed", "source", src.GetName(), "phrase", phrase, "error", err)
				errs[i] = fmt.Errorf("%s: %w", src.GetName(), err)
				return
			}
			results[i] = candidates
		}(i, source)
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	return results, failed
}

// shapePhrase appends the news suffix to short queries so generic search
// backends lean towards news coverage.
func (f *Fetcher) shapePhrase(text string) string {
	text = strings.TrimSpace(text)
	if f.newsSuffix == "" {
		return text
	}
	if len(strings.Fields(text)) < 3 && !strings.Contains(strings.ToLower(text), strings.ToLower(f.newsSuffix)) {
		return text + " " + f.newsSuffix
	}
	return text
}

// rankByRecency moves candidates published within window ahead of older or
// undated ones, keeping relative order inside both groups.
func rankByRecency(candidates []models.Candidate, window time.Duration, now time.Time) []models.Candidate {
	if window <= 0 {
		return candidates
	}
	cutoff := now.Add(-window)
	recent := make([]models.Candidate, 0, len(candidates))
	var rest []models.Candidate
	for _, c := range candidates {
		if !c.PublishedAt.IsZero() && !c.PublishedAt.Before(cutoff) {
			recent = append(recent, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(recent, rest...)
}
