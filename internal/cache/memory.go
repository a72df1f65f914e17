package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ObiAU/newssearch/internal/logging"
	"github.com/ObiAU/newssearch/internal/models"
)

type memoryItem struct {
	payload    []byte
	createdAt  time.Time
	updatedAt  time.Time
	lastAccess time.Time
}

// Memory keeps serialized entries in a map. Entries are stored encoded so
// callers never share slices with the store.
type Memory struct {
	mu    sync.RWMutex
	items map[string]*memoryItem
	opts  Options
	now   func() time.Time
	log   *slog.Logger
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		items: make(map[string]*memoryItem),
		opts:  opts,
		now:   time.Now,
		log:   logging.New("cache"),
	}
}

func (c *Memory) Get(ctx context.Context, id string) (models.CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[id]
	if !exists {
		return models.CacheEntry{}, false, nil
	}

	entry, err := decode(id, item.payload)
	if err != nil {
		c.log.Warn("dropping corrupt cache entry", "id", id, "error", err)
		delete(c.items, id)
		return models.CacheEntry{}, false, nil
	}
	item.lastAccess = c.now()
	entry.LastAccess = item.lastAccess
	return entry, true, nil
}

func (c *Memory) Put(ctx context.Context, entry models.CacheEntry) error {
	entry = stamp(entry, c.now())
	payload, err := encode(entry)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[entry.ArticleID] = &memoryItem{
		payload:    payload,
		createdAt:  entry.CreatedAt,
		updatedAt:  entry.UpdatedAt,
		lastAccess: entry.LastAccess,
	}
	return nil
}

func (c *Memory) Evict(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	if c.opts.TTL > 0 {
		cutoff := c.now().Add(-c.opts.TTL)
		for id, item := range c.items {
			if item.updatedAt.Before(cutoff) {
				delete(c.items, id)
				removed++
			}
		}
	}

	if c.opts.Capacity > 0 && len(c.items) > c.opts.Capacity {
		ids := make([]string, 0, len(c.items))
		for id := range c.items {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			a, b := c.items[ids[i]], c.items[ids[j]]
			if !a.lastAccess.Equal(b.lastAccess) {
				return a.lastAccess.Before(b.lastAccess)
			}
			return ids[i] < ids[j]
		})
		for _, id := range ids[:len(ids)-c.opts.Capacity] {
			delete(c.items, id)
			removed++
		}
	}
	return removed, nil
}

func (c *Memory) Stats(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		Backend:  "memory",
		Entries:  len(c.items),
		Capacity: c.opts.Capacity,
		TTL:      c.opts.TTL,
	}
	for _, item := range c.items {
		if stats.Oldest.IsZero() || item.createdAt.Before(stats.Oldest) {
			stats.Oldest = item.createdAt
		}
		if item.updatedAt.After(stats.Newest) {
			stats.Newest = item.updatedAt
		}
	}
	return stats, nil
}

func (c *Memory) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*memoryItem)
	return nil
}
