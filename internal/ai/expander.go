package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ObiAU/newssearch/internal/logging"
)

const (
	DefaultExpansionTTL     = 6 * time.Hour
	DefaultExpansionTimeout = 10 * time.Second
)

type expansion struct {
	phrases []string
	expires time.Time
}

// Expander suggests related search phrases for a query. Results are cached
// per query; without a client, or when the model call fails, it derives
// phrases from the query itself.
type Expander struct {
	client  Client
	model   string
	suffix  string
	ttl     time.Duration
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]expansion

	now func() time.Time
	log *slog.Logger
}

// NewExpander bounds each model call by timeout; a call that runs out of
// time falls back like any other failure.
func NewExpander(client Client, model, suffix string, ttl, timeout time.Duration) *Expander {
	if ttl <= 0 {
		ttl = DefaultExpansionTTL
	}
	if timeout <= 0 {
		timeout = DefaultExpansionTimeout
	}
	return &Expander{
		client:  client,
		model:   model,
		suffix:  suffix,
		ttl:     ttl,
		timeout: timeout,
		cache:   make(map[string]expansion),
		now:     time.Now,
		log:     logging.New("expander"),
	}
}

// Related returns up to n phrases, never including query itself.
func (e *Expander) Related(ctx context.Context, query string, n int) []string {
	query = strings.TrimSpace(query)
	if query == "" || n <= 0 {
		return nil
	}
	key := fmt.Sprintf("%s|%d", strings.ToLower(query), n)

	e.mu.Lock()
	if hit, ok := e.cache[key]; ok && e.now().Before(hit.expires) {
		e.mu.Unlock()
		return hit.phrases
	}
	e.mu.Unlock()

	phrases, err := e.ask(ctx, query, n)
	if err != nil {
		e.log.Debug("keyword expansion fell back", "query", query, "error", err)
		// Fallbacks are not cached so the model is asked again next time.
		return e.fallback(query, n)
	}

	e.mu.Lock()
	e.cache[key] = expansion{phrases: phrases, expires: e.now().Add(e.ttl)}
	e.mu.Unlock()
	return phrases
}

func (e *Expander) ask(ctx context.Context, query string, n int) ([]string, error) {
	if e.client == nil {
		return nil, fmt.Errorf("no model client")
	}
	prompt := fmt.Sprintf("Suggest %d short web search phrases that would find recent news coverage related to %q. "+
		"Respond with a JSON array of strings only.", n, query)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	content, err := e.client.Complete(ctx, e.model, "You help journalists search for news.", prompt)
	if err != nil {
		return nil, err
	}
	var raw []string
	if err := json.Unmarshal([]byte(jsonBody(content)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse expansion: %w", err)
	}
	phrases := distinct(query, raw, n)
	if len(phrases) == 0 {
		return nil, fmt.Errorf("no usable phrases in expansion")
	}
	return phrases, nil
}

func (e *Expander) fallback(query string, n int) []string {
	words := strings.Fields(query)
	var candidates []string
	if len(words) > 2 {
		candidates = append(candidates, strings.Join(words[:2], " "))
	}
	if len(words) > 3 {
		candidates = append(candidates, strings.Join(words[:3], " "))
	}
	if e.suffix != "" && !strings.EqualFold(words[len(words)-1], e.suffix) {
		candidates = append(candidates, query+" "+e.suffix)
	}
	return distinct(query, candidates, n)
}

func distinct(query string, phrases []string, n int) []string {
	seen := map[string]bool{strings.ToLower(query): true}
	var out []string
	for _, p := range phrases {
		p = strings.Join(strings.Fields(p), " ")
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
		if len(out) == n {
			break
		}
	}
	return out
}
