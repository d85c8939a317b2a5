// Package cache provides TTL caches with a common contract over an
// in-process map, a SQLite table and a remote PostgREST row store.
package cache

import (
	"context"
	"time"
)

const (
	// DefaultTTL applies when Options.TTL is zero
	DefaultTTL = 5 * time.Minute

	minSweepInterval = 10 * time.Millisecond
	maxSweepInterval = time.Minute
)

// Item is a cached value with the time it was stored and its lifetime.
type Item[T any] struct {
	Value     T
	Timestamp time.Time
	TTL       time.Duration
}

// Expired reports whether the item outlived its TTL at now.
func (i Item[T]) Expired(now time.Time) bool {
	return i.TTL > 0 && now.Sub(i.Timestamp) > i.TTL
}

// Store is the contract shared by every cache backing.
type Store[T any] interface {
	// Get returns the value and true, or false when absent or expired.
	Get(ctx context.Context, key string) (T, bool)

	// Set stores value. A zero ttl uses the store default.
	Set(ctx context.Context, key string, value T, ttl time.Duration) error

	// Has reports presence without counting a hit or a miss.
	Has(ctx context.Context, key string) bool

	Delete(ctx context.Context, key string) error

	// Clear removes the keys matching a glob pattern (* and ?) and returns
	// how many were removed. An empty pattern clears everything.
	Clear(ctx context.Context, pattern string) (int, error)

	Stats() Stats

	// Destroy stops background work. The store must not be used afterwards.
	Destroy()
}

// Stats are cumulative counters plus the current size.
type Stats struct {
	Name        string `json:"name"`
	Hits        int64  `json:"hits"`
	Misses      int64  `json:"misses"`
	Sets        int64  `json:"sets"`
	Deletes     int64  `json:"deletes"`
	Evictions   int64  `json:"evictions"`
	Expirations int64  `json:"expirations"`
	Size        int    `json:"size"`
	MaxSize     int    `json:"max_size"`
}

// HitRate is hits over lookups, zero before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Recorder mirrors cache activity into a metrics backend.
type Recorder interface {
	CacheHit(cache string)
	CacheMiss(cache string)
	CacheEviction(cache, reason string)
}

// Options configure any backing.
type Options struct {
	Name string
	TTL  time.Duration
	// MaxSize bounds the number of items; the oldest inserted go first.
	// Zero means unbounded.
	MaxSize int
	// SweepInterval overrides the derived background sweep period.
	SweepInterval time.Duration
	Recorder      Recorder
	Clock         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = SweepInterval(o.TTL)
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	return o
}

func (o Options) ttlFor(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return o.TTL
}

// ttlMillis converts a ttl for the millisecond-based stores. A positive ttl
// never rounds down to 0, which those stores read as "no expiry".
func ttlMillis(ttl time.Duration) int64 {
	ms := ttl.Milliseconds()
	if ttl > 0 && ms < 1 {
		return 1
	}
	return ms
}

// SweepInterval is a quarter of ttl, kept between 10ms and one minute.
func SweepInterval(ttl time.Duration) time.Duration {
	d := ttl / 4
	if d < minSweepInterval {
		return minSweepInterval
	}
	if d > maxSweepInterval {
		return maxSweepInterval
	}
	return d
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(string)              {}
func (nopRecorder) CacheMiss(string)             {}
func (nopRecorder) CacheEviction(string, string) {}

// sweeper runs fn every interval until stop is closed.
type sweeper struct {
	stop chan struct{}
	done chan struct{}
}

func startSweeper(interval time.Duration, fn func()) *sweeper {
	s := &sweeper{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return s
}

// halt stops the goroutine and waits for it. Safe to call once.
func (s *sweeper) halt() {
	close(s.stop)
	<-s.done
}
