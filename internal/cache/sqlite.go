package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ObiAU/newssearch/internal/logging"
	"github.com/ObiAU/newssearch/internal/models"
)

// SQLite stores entries in a single table. Writes go through a dedicated
// one-connection pool; reads use a separate pool and never write, so access
// times are buffered in memory and flushed with the next eviction.
type SQLite struct {
	path    string
	readDB  *sql.DB
	writeDB *sql.DB
	opts    Options

	mu      sync.Mutex
	touched map[string]time.Time

	now func() time.Time
	log *slog.Logger
}

func OpenSQLite(path string, opts Options) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	s := &SQLite{
		path:    path,
		writeDB: writeDB,
		opts:    opts,
		touched: make(map[string]time.Time),
		now:     time.Now,
		log:     logging.New("cache"),
	}
	if err := s.init(); err != nil {
		writeDB.Close()
		return nil, err
	}

	readDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}
	s.readDB = readDB
	return s, nil
}

func (s *SQLite) init() error {
	_, err := s.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			id          TEXT PRIMARY KEY,
			payload     BLOB NOT NULL,
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL,
			last_access INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_entries_updated ON entries(updated_at);
		CREATE INDEX IF NOT EXISTS idx_entries_access ON entries(last_access);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (models.CacheEntry, bool, error) {
	var (
		payload    []byte
		lastAccess int64
	)
	err := s.readDB.QueryRowContext(ctx,
		`SELECT payload, last_access FROM entries WHERE id = ?`, id,
	).Scan(&payload, &lastAccess)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("reading cache entry %s: %w", id, err)
	}

	entry, err := decode(id, payload)
	if err != nil {
		s.log.Warn("dropping corrupt cache entry", "id", id, "error", err)
		if _, delErr := s.writeDB.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); delErr != nil {
			s.log.Error("deleting corrupt cache entry", "id", id, "error", delErr)
		}
		return models.CacheEntry{}, false, nil
	}

	now := s.now()
	s.mu.Lock()
	s.touched[id] = now
	s.mu.Unlock()

	entry.LastAccess = time.UnixMilli(lastAccess)
	if now.After(entry.LastAccess) {
		entry.LastAccess = now
	}
	return entry, true, nil
}

func (s *SQLite) Put(ctx context.Context, entry models.CacheEntry) error {
	entry = stamp(entry, s.now())
	payload, err := encode(entry)
	if err != nil {
		return err
	}

	_, err = s.writeDB.ExecContext(ctx, `
		INSERT INTO entries (id, payload, created_at, updated_at, last_access)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			last_access = excluded.last_access
	`, entry.ArticleID, payload, entry.CreatedAt.UnixMilli(), entry.UpdatedAt.UnixMilli(), entry.LastAccess.UnixMilli())
	if err != nil {
		return fmt.Errorf("upserting cache entry %s: %w", entry.ArticleID, err)
	}

	s.mu.Lock()
	delete(s.touched, entry.ArticleID)
	s.mu.Unlock()
	return nil
}

func (s *SQLite) Evict(ctx context.Context) (int, error) {
	if err := s.flushTouched(ctx); err != nil {
		return 0, err
	}

	removed := 0
	if s.opts.TTL > 0 {
		cutoff := s.now().Add(-s.opts.TTL).UnixMilli()
		res, err := s.writeDB.ExecContext(ctx, `DELETE FROM entries WHERE updated_at < ?`, cutoff)
		if err != nil {
			return 0, fmt.Errorf("evicting expired entries: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}

	if s.opts.Capacity > 0 {
		res, err := s.writeDB.ExecContext(ctx, `
			DELETE FROM entries WHERE id IN (
				SELECT id FROM entries ORDER BY last_access DESC, id DESC LIMIT -1 OFFSET ?
			)
		`, s.opts.Capacity)
		if err != nil {
			return removed, fmt.Errorf("evicting over capacity: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	return removed, nil
}

func (s *SQLite) flushTouched(ctx context.Context) error {
	s.mu.Lock()
	touched := s.touched
	s.touched = make(map[string]time.Time)
	s.mu.Unlock()

	if len(touched) == 0 {
		return nil
	}

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE entries SET last_access = MAX(last_access, ?) WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, at := range touched {
		if _, err := stmt.ExecContext(ctx, at.UnixMilli(), id); err != nil {
			return fmt.Errorf("recording access for %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Backend:  "sqlite",
		Path:     s.path,
		Capacity: s.opts.Capacity,
		TTL:      s.opts.TTL,
	}

	var oldest, newest sql.NullInt64
	err := s.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_at), MAX(updated_at) FROM entries`,
	).Scan(&stats.Entries, &oldest, &newest)
	if err != nil {
		return stats, fmt.Errorf("reading cache stats: %w", err)
	}
	if oldest.Valid {
		stats.Oldest = time.UnixMilli(oldest.Int64)
	}
	if newest.Valid {
		stats.Newest = time.UnixMilli(newest.Int64)
	}
	return stats, nil
}

func (s *SQLite) Close() error {
	var errs []error
	if err := s.flushTouched(context.Background()); err != nil {
		errs = append(errs, err)
	}
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}
	return errors.Join(errs...)
}
