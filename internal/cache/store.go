// Package cache persists extracted articles and their summaries by article
// identity so repeated queries skip the model.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ObiAU/newssearch/internal/config"
	"github.com/ObiAU/newssearch/internal/models"
)

const MemoryPath = ":memory:"

type Store interface {
	// Get returns the entry for id. A miss is (zero, false, nil).
	Get(ctx context.Context, id string) (models.CacheEntry, bool, error)
	// Put inserts or replaces the entry for entry.ArticleID.
	Put(ctx context.Context, entry models.CacheEntry) error
	// Evict removes expired entries, then the least recently used ones
	// beyond capacity, and reports how many were removed.
	Evict(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

type Stats struct {
	Backend  string        `json:"backend"`
	Path     string        `json:"path,omitempty"`
	Entries  int           `json:"entries"`
	Capacity int           `json:"capacity"`
	TTL      time.Duration `json:"ttl"`
	Oldest   time.Time     `json:"oldest,omitempty"`
	Newest   time.Time     `json:"newest,omitempty"`
}

type Options struct {
	Capacity int
	TTL      time.Duration
}

// Open returns the store configured by cfg: SQLite at cfg.CachePath, or an
// in-process store when the path is ":memory:".
func Open(cfg *config.Config) (Store, error) {
	opts := Options{Capacity: cfg.CacheCapacity, TTL: cfg.CacheTTL}
	if cfg.CachePath == MemoryPath || cfg.CachePath == "" {
		return NewMemory(opts), nil
	}
	return OpenSQLite(cfg.CachePath, opts)
}

func encode(entry models.CacheEntry) ([]byte, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding cache entry %s: %w", entry.ArticleID, err)
	}
	return payload, nil
}

func decode(id string, payload []byte) (models.CacheEntry, error) {
	var entry models.CacheEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return entry, models.NewError(models.KindCacheCorruption, "cache get", id, err)
	}
	if entry.ArticleID != id {
		return entry, models.NewError(models.KindCacheCorruption, "cache get", id,
			fmt.Errorf("payload belongs to %q", entry.ArticleID))
	}
	return entry, nil
}

// stamp fills the bookkeeping times of an entry about to be written.
func stamp(entry models.CacheEntry, now time.Time) models.CacheEntry {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	entry.LastAccess = now
	return entry
}
