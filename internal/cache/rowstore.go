package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("cache")

// RowStoreConfig points a RowStore at a PostgREST table with the columns
// namespace, key, value (json), created_at (bigint, unix nanos) and ttl_ms.
type RowStoreConfig struct {
	BaseURL   string
	APIKey    string
	Table     string
	Namespace string
}

type remoteRow struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value,omitempty"`
	CreatedAt int64           `json:"created_at"`
	TTLMs     int64           `json:"ttl_ms"`
}

// RowStore keeps items in a remote PostgREST table. Calls go through a
// circuit breaker; when it is open reads are misses and writes fail fast.
type RowStore[T any] struct {
	httpClient *http.Client
	cfg        RowStoreConfig
	cb         *gobreaker.CircuitBreaker
	opts       Options
	logger     *zap.Logger

	hits, misses, sets, deletes, evictions, expirations atomic.Int64

	sweeper *sweeper
	once    sync.Once
}

// NewRowStore creates a remote store and starts its sweeper.
func NewRowStore[T any](httpClient *http.Client, cfg RowStoreConfig, cb *gobreaker.CircuitBreaker, opts Options, logger *zap.Logger) *RowStore[T] {
	opts = opts.withDefaults()
	if opts.Name == "" {
		opts.Name = cfg.Namespace
	}
	s := &RowStore[T]{
		httpClient: httpClient,
		cfg:        cfg,
		cb:         cb,
		opts:       opts,
		logger:     logger,
	}
	s.sweeper = startSweeper(opts.SweepInterval, s.sweep)
	return s
}

func (s *RowStore[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	item, found, err := s.load(ctx, key)
	if err != nil {
		s.logger.Warn("Remote cache read failed", zap.String("cache", s.opts.Name), zap.String("key", key), zap.Error(err))
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

func (s *RowStore[T]) load(ctx context.Context, key string) (Item[T], bool, error) {
	q := s.scope()
	q.Set("key", "eq."+key)
	q.Set("select", "value,created_at,ttl_ms")

	var rows []remoteRow
	if err := s.do(ctx, http.MethodGet, q, nil, &rows); err != nil {
		return Item[T]{}, false, err
	}
	if len(rows) == 0 {
		return Item[T]{}, false, nil
	}

	row := rows[0]
	item := Item[T]{Timestamp: time.Unix(0, row.CreatedAt), TTL: time.Duration(row.TTLMs) * time.Millisecond}
	if item.Expired(s.opts.Clock()) {
		if err := s.deleteKeys(ctx, []string{key}); err != nil {
			return Item[T]{}, false, err
		}
		s.expirations.Add(1)
		s.opts.Recorder.CacheEviction(s.opts.Name, "expired")
		return Item[T]{}, false, nil
	}
	if err := json.Unmarshal(row.Value, &item.Value); err != nil {
		return Item[T]{}, false, fmt.Errorf("failed to decode cache item: %w", err)
	}
	return item, true, nil
}

func (s *RowStore[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache item: %w", err)
	}
	row := remoteRow{
		Namespace: s.cfg.Namespace,
		Key:       key,
		Value:     data,
		CreatedAt: s.opts.Clock().UnixNano(),
		TTLMs:     ttlMillis(s.opts.ttlFor(ttl)),
	}
	q := url.Values{}
	q.Set("on_conflict", "namespace,key")
	if err := s.do(ctx, http.MethodPost, q, []remoteRow{row}, nil); err != nil {
		return err
	}
	s.sets.Add(1)

	if s.opts.MaxSize > 0 {
		return s.evict(ctx)
	}
	return nil
}

func (s *RowStore[T]) evict(ctx context.Context) error {
	rows, err := s.listRows(ctx, "key")
	if err != nil {
		return err
	}
	over := len(rows) - s.opts.MaxSize
	if over <= 0 {
		return nil
	}
	keys := make([]string, 0, over)
	for _, r := range rows[:over] {
		keys = append(keys, r.Key)
	}
	if err := s.deleteKeys(ctx, keys); err != nil {
		return err
	}
	s.evictions.Add(int64(over))
	for range keys {
		s.opts.Recorder.CacheEviction(s.opts.Name, "size")
	}
	return nil
}

func (s *RowStore[T]) Has(ctx context.Context, key string) bool {
	_, found, err := s.load(ctx, key)
	if err != nil {
		s.logger.Warn("Remote cache read failed", zap.String("cache", s.opts.Name), zap.Error(err))
	}
	return found
}

func (s *RowStore[T]) Delete(ctx context.Context, key string) error {
	if err := s.deleteKeys(ctx, []string{key}); err != nil {
		return err
	}
	s.deletes.Add(1)
	return nil
}

func (s *RowStore[T]) Clear(ctx context.Context, pattern string) (int, error) {
	p, err := CompilePattern(pattern)
	if err != nil {
		return 0, err
	}
	rows, err := s.listRows(ctx, "key")
	if err != nil {
		return 0, err
	}
	var keys []string
	for _, r := range rows {
		if p.Match(r.Key) {
			keys = append(keys, r.Key)
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.deleteKeys(ctx, keys); err != nil {
		return 0, err
	}
	s.deletes.Add(int64(len(keys)))
	return len(keys), nil
}

func (s *RowStore[T]) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	size := 0
	if rows, err := s.listRows(ctx, "key"); err == nil {
		size = len(rows)
	} else {
		s.logger.Warn("Failed to count remote cache items", zap.String("cache", s.opts.Name), zap.Error(err))
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

// Destroy stops the sweeper. Remote rows are kept.
func (s *RowStore[T]) Destroy() {
	s.once.Do(s.sweeper.halt)
}

func (s *RowStore[T]) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := s.listRows(ctx, "key,created_at,ttl_ms")
	if err != nil {
		s.logger.Debug("Remote cache sweep skipped", zap.String("cache", s.opts.Name), zap.Error(err))
		return
	}
	now := s.opts.Clock()
	var expired []string
	for _, r := range rows {
		item := Item[T]{Timestamp: time.Unix(0, r.CreatedAt), TTL: time.Duration(r.TTLMs) * time.Millisecond}
		if item.Expired(now) {
			expired = append(expired, r.Key)
		}
	}
	if len(expired) == 0 {
		return
	}
	if err := s.deleteKeys(ctx, expired); err != nil {
		s.logger.Warn("Remote cache sweep failed", zap.String("cache", s.opts.Name), zap.Error(err))
		return
	}
	s.expirations.Add(int64(len(expired)))
}

// listRows returns the rows of the namespace, oldest inserted first.
func (s *RowStore[T]) listRows(ctx context.Context, columns string) ([]remoteRow, error) {
	q := s.scope()
	q.Set("select", columns)
	q.Set("order", "created_at.asc")

	var rows []remoteRow
	if err := s.do(ctx, http.MethodGet, q, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *RowStore[T]) deleteKeys(ctx context.Context, keys []string) error {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = `"` + strings.ReplaceAll(strings.ReplaceAll(k, `\`, `\\`), `"`, `\"`) + `"`
	}
	q := s.scope()
	q.Set("key", "in.("+strings.Join(quoted, ",")+")")
	return s.do(ctx, http.MethodDelete, q, nil, nil)
}

func (s *RowStore[T]) scope() url.Values {
	q := url.Values{}
	q.Set("namespace", "eq."+s.cfg.Namespace)
	return q
}

// do runs one PostgREST call through the breaker and decodes the answer into out.
func (s *RowStore[T]) do(ctx context.Context, method string, query url.Values, body, out any) error {
	ctx, span := tracer.Start(ctx, "RowStore."+method)
	defer span.End()
	span.SetAttributes(attribute.String("cache.name", s.opts.Name))

	_, err := s.cb.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			reader = bytes.NewReader(data)
		}

		endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.Table, query.Encode())
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("apikey", s.cfg.APIKey)
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		if method == http.MethodPost {
			req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("row store returned status %d: %s", resp.StatusCode, string(data))
		}
		if out != nil && len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return nil, fmt.Errorf("failed to decode row store response: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("row store %s unavailable: %w", s.opts.Name, err)
		}
		return err
	}
	return nil
}

var _ Store[int] = (*RowStore[int])(nil)
