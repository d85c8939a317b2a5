package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS cache_items (
	namespace  TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	created_at INTEGER NOT NULL,
	ttl_ms     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (namespace, key)
)`

// SQLiteStore persists items as JSON in the cache_items table. Each store
// owns one namespace, so several stores can share a database.
type SQLiteStore[T any] struct {
	db        *sql.DB
	namespace string
	opts      Options
	logger    *zap.Logger

	hits, misses, sets, deletes, evictions, expirations atomic.Int64

	sweeper *sweeper
	once    sync.Once
}

// NewSQLiteStore creates the table when needed and starts the sweeper.
func NewSQLiteStore[T any](ctx context.Context, db *sql.DB, namespace string, opts Options, logger *zap.Logger) (*SQLiteStore[T], error) {
	if namespace == "" {
		return nil, errors.New("cache namespace is required")
	}
	if _, err := db.ExecContext(ctx, cacheSchema); err != nil {
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}
	opts = opts.withDefaults()
	if opts.Name == "" {
		opts.Name = namespace
	}
	s := &SQLiteStore[T]{
		db:        db,
		namespace: namespace,
		opts:      opts,
		logger:    logger,
	}
	s.sweeper = startSweeper(opts.SweepInterval, s.sweep)
	return s, nil
}

func (s *SQLiteStore[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	item, found, err := s.load(ctx, key)
	if err != nil {
		s.logger.Warn("Cache read failed", zap.String("cache", s.opts.Name), zap.String("key", key), zap.Error(err))
	}
	if !found {
		s.misses.Add(1)
		s.opts.Recorder.CacheMiss(s.opts.Name)
		return zero, false
	}
	s.hits.Add(1)
	s.opts.Recorder.CacheHit(s.opts.Name)
	return item.Value, true
}

// load returns found=false for absent, expired and undecodable rows.
func (s *SQLiteStore[T]) load(ctx context.Context, key string) (Item[T], bool, error) {
	var (
		raw       string
		createdAt int64
		ttlMs     int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, created_at, ttl_ms FROM cache_items WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&raw, &createdAt, &ttlMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Item[T]{}, false, nil
	}
	if err != nil {
		return Item[T]{}, false, fmt.Errorf("failed to query cache item: %w", err)
	}

	item := Item[T]{
		Timestamp: time.Unix(0, createdAt),
		TTL:       time.Duration(ttlMs) * time.Millisecond,
	}
	if item.Expired(s.opts.Clock()) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_items WHERE namespace = ? AND key = ?`, s.namespace, key); err != nil {
			return Item[T]{}, false, fmt.Errorf("failed to delete expired item: %w", err)
		}
		s.expirations.Add(1)
		s.opts.Recorder.CacheEviction(s.opts.Name, "expired")
		return Item[T]{}, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &item.Value); err != nil {
		return Item[T]{}, false, fmt.Errorf("failed to decode cache item: %w", err)
	}
	return item, true, nil
}

func (s *SQLiteStore[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache item: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_items (namespace, key, value, created_at, ttl_ms) VALUES (?, ?, ?, ?, ?)`,
		s.namespace, key, string(data), s.opts.Clock().UnixNano(), ttlMillis(s.opts.ttlFor(ttl)),
	)
	if err != nil {
		s.logger.Error("Failed to write cache item", zap.String("cache", s.opts.Name), zap.Error(err))
		return fmt.Errorf("failed to write cache item: %w", err)
	}
	s.sets.Add(1)

	if s.opts.MaxSize > 0 {
		return s.evict(ctx)
	}
	return nil
}

// evict drops the oldest inserted rows above MaxSize. INSERT OR REPLACE
// assigns a fresh rowid, so rowid breaks timestamp ties in insertion order.
func (s *SQLiteStore[T]) evict(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_items WHERE rowid IN (
			SELECT rowid FROM cache_items WHERE namespace = ?
			ORDER BY created_at, rowid
			LIMIT MAX(0, (SELECT COUNT(*) FROM cache_items WHERE namespace = ?) - ?)
		)`, s.namespace, s.namespace, s.opts.MaxSize)
	if err != nil {
		return fmt.Errorf("failed to evict cache items: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.evictions.Add(n)
		for i := int64(0); i < n; i++ {
			s.opts.Recorder.CacheEviction(s.opts.Name, "size")
		}
	}
	return nil
}

func (s *SQLiteStore[T]) Has(ctx context.Context, key string) bool {
	_, found, err := s.load(ctx, key)
	if err != nil {
		s.logger.Warn("Cache read failed", zap.String("cache", s.opts.Name), zap.Error(err))
	}
	return found
}

func (s *SQLiteStore[T]) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_items WHERE namespace = ? AND key = ?`, s.namespace, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache item: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.deletes.Add(n)
	}
	return nil
}

func (s *SQLiteStore[T]) Clear(ctx context.Context, pattern string) (int, error) {
	p, err := CompilePattern(pattern)
	if err != nil {
		return 0, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key FROM cache_items WHERE namespace = ?`, s.namespace)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache keys: %w", err)
	}
	var matched []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan cache key: %w", err)
		}
		if p.Match(key) {
			matched = append(matched, key)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, key := range matched {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_items WHERE namespace = ? AND key = ?`, s.namespace, key); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("failed to clear cache item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cache clear: %w", err)
	}
	s.deletes.Add(int64(len(matched)))
	return len(matched), nil
}

func (s *SQLiteStore[T]) Stats() Stats {
	var size int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cache_items WHERE namespace = ?`, s.namespace).Scan(&size); err != nil {
		s.logger.Warn("Failed to count cache items", zap.String("cache", s.opts.Name), zap.Error(err))
	}
	return Stats{
		Name:        s.opts.Name,
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Sets:        s.sets.Load(),
		Deletes:     s.deletes.Load(),
		Evictions:   s.evictions.Load(),
		Expirations: s.expirations.Load(),
		Size:        size,
		MaxSize:     s.opts.MaxSize,
	}
}

// Destroy stops the sweeper. Persisted items are kept.
func (s *SQLiteStore[T]) Destroy() {
	s.once.Do(s.sweeper.halt)
}

func (s *SQLiteStore[T]) sweep() {
	res, err := s.db.Exec(
		`DELETE FROM cache_items WHERE namespace = ? AND ttl_ms > 0 AND created_at + ttl_ms * 1000000 < ?`,
		s.namespace, s.opts.Clock().UnixNano(),
	)
	if err != nil {
		s.logger.Warn("Cache sweep failed", zap.String("cache", s.opts.Name), zap.Error(err))
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.expirations.Add(n)
	}
}

var _ Store[int] = (*SQLiteStore[int])(nil)
