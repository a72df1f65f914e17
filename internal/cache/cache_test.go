package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ObiAU/newssearch/internal/config"
	"github.com/ObiAU/newssearch/internal/models"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC)}
}

// stores returns both backends sharing one fake clock.
func stores(t *testing.T, opts Options) map[string]struct {
	store Store
	clock *clock
} {
	t.Helper()

	memClock := newClock()
	mem := NewMemory(opts)
	mem.now = memClock.now

	sqlClock := newClock()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"), opts)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	db.now = sqlClock.now
	t.Cleanup(func() { db.Close() })

	return map[string]struct {
		store Store
		clock *clock
	}{
		"memory": {mem, memClock},
		"sqlite": {db, sqlClock},
	}
}

func entry(id string) models.CacheEntry {
	published := time.Date(2026, 10, 11, 22, 15, 0, 0, time.UTC)
	return models.CacheEntry{
		ArticleID: id,
		Article: models.Article{
			ID:          id,
			URL:         "https://planet.test/" + id,
			Title:       "Turnout hits record — “high”",
			Text:        "Voters queued for hours.\n\nOfficials extended polling.",
			Author:      "Lois Lane",
			PublishedAt: published,
			Domain:      "planet.test",
			Confidence:  0.82,
			Strategy:    "density",
			FetchIndex:  3,
		},
		Summary: &models.SummaryResult{
			ArticleID:   id,
			Summary:     "Record turnout.",
			KeyPoints:   []string{"queues", "extended hours"},
			Risk:        "LOW",
			GeneratedAt: published.Add(time.Hour),
			Model:       "gpt-4o-mini",
		},
	}
}

var ignoreBookkeeping = cmpopts.IgnoreFields(models.CacheEntry{}, "CreatedAt", "UpdatedAt", "LastAccess")

func TestRoundTrip(t *testing.T) {
	for name, tc := range stores(t, Options{Capacity: 10, TTL: time.Hour}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := entry("a")
			if err := tc.store.Put(ctx, want); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, ok, err := tc.store.Get(ctx, "a")
			if err != nil || !ok {
				t.Fatalf("Get: ok=%v err=%v", ok, err)
			}
			if diff := cmp.Diff(want, got, ignoreBookkeeping); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
			if !got.CreatedAt.Equal(tc.clock.now()) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, tc.clock.now())
			}

			wantBytes, _ := encode(stamp(want, tc.clock.now()))
			gotBytes, _ := encode(got)
			if string(wantBytes) != string(gotBytes) {
				t.Errorf("payload differs after round trip:\nwant %s\ngot  %s", wantBytes, gotBytes)
			}
		})
	}
}

func TestMiss(t *testing.T) {
	for name, tc := range stores(t, Options{}) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := tc.store.Get(context.Background(), "nope")
			if ok || err != nil {
				t.Errorf("Get miss: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestUpsertKeepsCreatedAt(t *testing.T) {
	for name, tc := range stores(t, Options{}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := entry("a")
			first.Summary = nil
			if err := tc.store.Put(ctx, first); err != nil {
				t.Fatal(err)
			}
			created, _, _ := tc.store.Get(ctx, "a")

			tc.clock.advance(time.Minute)
			second := created
			second.Summary = entry("a").Summary
			if err := tc.store.Put(ctx, second); err != nil {
				t.Fatal(err)
			}

			got, _, _ := tc.store.Get(ctx, "a")
			if got.Summary == nil {
				t.Fatal("expected summary after update")
			}
			if !got.CreatedAt.Equal(created.CreatedAt) {
				t.Errorf("CreatedAt changed: %v -> %v", created.CreatedAt, got.CreatedAt)
			}
			if !got.UpdatedAt.After(created.UpdatedAt) {
				t.Errorf("UpdatedAt not advanced")
			}
			if stats, _ := tc.store.Stats(ctx); stats.Entries != 1 {
				t.Errorf("Entries = %d, want 1", stats.Entries)
			}
		})
	}
}

func TestEvictTTLThenCapacity(t *testing.T) {
	for name, tc := range stores(t, Options{Capacity: 2, TTL: time.Hour}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mustPut(t, tc.store, "old")
			tc.clock.advance(2 * time.Hour)

			for _, id := range []string{"a", "b", "c"} {
				mustPut(t, tc.store, id)
				tc.clock.advance(time.Second)
			}
			// Reading "a" makes "b" the least recently used.
			if _, ok, _ := tc.store.Get(ctx, "a"); !ok {
				t.Fatal("expected hit for a")
			}

			removed, err := tc.store.Evict(ctx)
			if err != nil {
				t.Fatalf("Evict: %v", err)
			}
			if removed != 2 {
				t.Errorf("removed = %d, want 2", removed)
			}
			for id, want := range map[string]bool{"old": false, "a": true, "b": false, "c": true} {
				if _, ok, _ := tc.store.Get(ctx, id); ok != want {
					t.Errorf("Get(%s) present = %v, want %v", id, ok, want)
				}
			}
		})
	}
}

func TestCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()

	mem := NewMemory(Options{})
	mustPut(t, mem, "a")
	mem.items["a"].payload = []byte("{not json")
	if _, ok, err := mem.Get(ctx, "a"); ok || err != nil {
		t.Errorf("memory: ok=%v err=%v, want miss", ok, err)
	}
	if len(mem.items) != 0 {
		t.Error("memory: corrupt entry not removed")
	}

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	mustPut(t, db, "a")
	if _, err := db.writeDB.Exec(`UPDATE entries SET payload = ? WHERE id = ?`, []byte("garbage"), "a"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := db.Get(ctx, "a"); ok || err != nil {
		t.Errorf("sqlite: ok=%v err=%v, want miss", ok, err)
	}
	if stats, _ := db.Stats(ctx); stats.Entries != 0 {
		t.Errorf("sqlite: corrupt entry not removed, %d entries left", stats.Entries)
	}
}

func TestDecodeReportsCorruption(t *testing.T) {
	_, err := decode("a", []byte(`{"article_id":"b"}`))
	if !errors.Is(err, models.ErrCacheCorruption) {
		t.Errorf("err = %v, want cache corruption", err)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	db, err := OpenSQLite(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	mustPut(t, db, "a")
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = OpenSQLite(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, ok, err := db.Get(context.Background(), "a"); !ok || err != nil {
		t.Errorf("after reopen: ok=%v err=%v", ok, err)
	}
}

func TestConcurrentPuts(t *testing.T) {
	for name, tc := range stores(t, Options{}) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					e := entry(fmt.Sprintf("id-%d", i%5))
					if err := tc.store.Put(context.Background(), e); err != nil {
						t.Errorf("Put: %v", err)
					}
				}(i)
			}
			wg.Wait()
			if stats, _ := tc.store.Stats(context.Background()); stats.Entries != 5 {
				t.Errorf("Entries = %d, want 5", stats.Entries)
			}
		})
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.CachePath = MemoryPath
	store, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, ok := store.(*Memory); !ok {
		t.Errorf("Open(%q) = %T, want *Memory", MemoryPath, store)
	}

	cfg.CachePath = filepath.Join(t.TempDir(), "c.db")
	store, err = Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, ok := store.(*SQLite); !ok {
		t.Errorf("Open(file) = %T, want *SQLite", store)
	}
}

func TestJanitorRejectsBadSchedule(t *testing.T) {
	if _, err := StartJanitor(NewMemory(Options{}), "every so often"); err == nil {
		t.Fatal("expected schedule error")
	}
	j, err := StartJanitor(NewMemory(Options{}), "@every 1h")
	if err != nil {
		t.Fatalf("StartJanitor: %v", err)
	}
	j.Stop()
}

func mustPut(t *testing.T, s Store, id string) {
	t.Helper()
	if err := s.Put(context.Background(), entry(id)); err != nil {
		t.Fatalf("Put(%s): %v", id, err)
	}
}
