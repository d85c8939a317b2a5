package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryEntry[T any] struct {
	key  string
	item Item[T]
}

// Memory is an in-process Store. Entries live in insertion order so that
// eviction removes the oldest inserted item first.
type Memory[T any] struct {
	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List
	opts  Options
	stats Stats

	sweeper *sweeper
	once    sync.Once
}

// NewMemory creates a memory store and starts its sweeper.
func NewMemory[T any](opts Options) *Memory[T] {
	opts = opts.withDefaults()
	m := &Memory[T]{
		items: make(map[string]*list.Element),
		order: list.New(),
		opts:  opts,
		stats: Stats{Name: opts.Name, MaxSize: opts.MaxSize},
	}
	m.sweeper = startSweeper(opts.SweepInterval, m.sweep)
	return m
}

func (m *Memory[T]) Get(_ context.Context, key string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	el, ok := m.items[key]
	if !ok {
		m.stats.Misses++
		m.opts.Recorder.CacheMiss(m.opts.Name)
		return zero, false
	}
	entry := el.Value.(*memoryEntry[T])
	if entry.item.Expired(m.opts.Clock()) {
		m.removeLocked(el)
		m.stats.Expirations++
		m.stats.Misses++
		m.opts.Recorder.CacheEviction(m.opts.Name, "expired")
		m.opts.Recorder.CacheMiss(m.opts.Name)
		return zero, false
	}
	m.stats.Hits++
	m.opts.Recorder.CacheHit(m.opts.Name)
	return entry.item.Value, true
}

// Set re-inserts an existing key, which makes it the newest item.
func (m *Memory[T]) Set(_ context.Context, key string, value T, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.removeLocked(el)
	}
	entry := &memoryEntry[T]{
		key: key,
		item: Item[T]{
			Value:     value,
			Timestamp: m.opts.Clock(),
			TTL:       m.opts.ttlFor(ttl),
		},
	}
	m.items[key] = m.order.PushBack(entry)
	m.stats.Sets++

	for m.opts.MaxSize > 0 && m.order.Len() > m.opts.MaxSize {
		m.removeLocked(m.order.Front())
		m.stats.Evictions++
		m.opts.Recorder.CacheEviction(m.opts.Name, "size")
	}
	return nil
}

func (m *Memory[T]) Has(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return false
	}
	if el.Value.(*memoryEntry[T]).item.Expired(m.opts.Clock()) {
		m.removeLocked(el)
		m.stats.Expirations++
		return false
	}
	return true
}

func (m *Memory[T]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.removeLocked(el)
		m.stats.Deletes++
	}
	return nil
}

func (m *Memory[T]) Clear(_ context.Context, pattern string) (int, error) {
	p, err := CompilePattern(pattern)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for el := m.order.Front(); el != nil; {
		next := el.Next()
		if p.Match(el.Value.(*memoryEntry[T]).key) {
			m.removeLocked(el)
			removed++
		}
		el = next
	}
	m.stats.Deletes += int64(removed)
	return removed, nil
}

// Keys returns the live keys in insertion order.
func (m *Memory[T]) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Clock()
	keys := make([]string, 0, m.order.Len())
	for el := m.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*memoryEntry[T])
		if !entry.item.Expired(now) {
			keys = append(keys, entry.key)
		}
	}
	return keys
}

func (m *Memory[T]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats
	s.Size = m.order.Len()
	return s
}

func (m *Memory[T]) Destroy() {
	m.once.Do(func() {
		m.sweeper.halt()
		m.mu.Lock()
		m.items = make(map[string]*list.Element)
		m.order.Init()
		m.mu.Unlock()
	})
}

func (m *Memory[T]) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Clock()
	for el := m.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*memoryEntry[T]).item.Expired(now) {
			m.removeLocked(el)
			m.stats.Expirations++
			m.opts.Recorder.CacheEviction(m.opts.Name, "expired")
		}
		el = next
	}
}

func (m *Memory[T]) removeLocked(el *list.Element) {
	delete(m.items, el.Value.(*memoryEntry[T]).key)
	m.order.Remove(el)
}

var _ Store[int] = (*Memory[int])(nil)
