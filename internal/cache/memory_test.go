package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingRecorder struct {
	mu        sync.Mutex
	hits      int
	misses    int
	evictions map[string]int
}

func (r *countingRecorder) CacheHit(string)  { r.mu.Lock(); r.hits++; r.mu.Unlock() }
func (r *countingRecorder) CacheMiss(string) { r.mu.Lock(); r.misses++; r.mu.Unlock() }
func (r *countingRecorder) CacheEviction(_ string, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evictions == nil {
		r.evictions = make(map[string]int)
	}
	r.evictions[reason]++
}

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[string](Options{Name: "test"})
	defer m.Destroy()

	_, ok := m.Get(ctx, "missing")
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "a", "alpha", 0))
	v, ok := m.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "alpha", v)
	assert.True(t, m.Has(ctx, "a"))

	st := m.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(1), st.Sets)
	assert.Equal(t, 1, st.Size)
	assert.InDelta(t, 0.5, st.HitRate(), 1e-9)
}

func TestMemory_ShortTTLExpires(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[int](Options{})
	defer m.Destroy()

	require.NoError(t, m.Set(ctx, "k", 1, 10*time.Millisecond))
	time.Sleep(15 * time.Millisecond)

	_, ok := m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_ExpiryWithClock(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	rec := &countingRecorder{}
	m := NewMemory[int](Options{TTL: time.Hour, Clock: clock.Now, Recorder: rec})
	defer m.Destroy()

	require.NoError(t, m.Set(ctx, "default", 1, 0))
	require.NoError(t, m.Set(ctx, "short", 2, time.Minute))

	clock.Advance(2 * time.Minute)
	assert.False(t, m.Has(ctx, "short"))
	v, ok := m.Get(ctx, "default")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(time.Hour)
	_, ok = m.Get(ctx, "default")
	assert.False(t, ok)
	assert.Equal(t, 1, rec.evictions["expired"])
	assert.Equal(t, int64(2), m.Stats().Expirations)
}

func TestMemory_EvictsOldestInserted(t *testing.T) {
	ctx := context.Background()
	rec := &countingRecorder{}
	m := NewMemory[int](Options{MaxSize: 2, Recorder: rec})
	defer m.Destroy()

	require.NoError(t, m.Set(ctx, "a", 1, 0))
	require.NoError(t, m.Set(ctx, "b", 2, 0))
	// reads do not refresh position
	_, _ = m.Get(ctx, "a")
	require.NoError(t, m.Set(ctx, "c", 3, 0))

	assert.Equal(t, []string{"b", "c"}, m.Keys())
	assert.Equal(t, int64(1), m.Stats().Evictions)
	assert.Equal(t, 1, rec.evictions["size"])

	// re-setting makes the key newest
	require.NoError(t, m.Set(ctx, "b", 20, 0))
	require.NoError(t, m.Set(ctx, "d", 4, 0))
	assert.Equal(t, []string{"b", "d"}, m.Keys())
}

func TestMemory_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[string](Options{})
	defer m.Destroy()

	for _, k := range []string{"ledger:c1:client", "ledger:c1:supplier", "ledger:c2:client", "status:openai"} {
		require.NoError(t, m.Set(ctx, k, k, 0))
	}

	require.NoError(t, m.Delete(ctx, "status:openai"))
	require.NoError(t, m.Delete(ctx, "status:openai"))
	assert.False(t, m.Has(ctx, "status:openai"))

	n, err := m.Clear(ctx, "ledger:c1:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"ledger:c2:client"}, m.Keys())

	n, err = m.Clear(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, m.Keys())
	assert.Equal(t, int64(4), m.Stats().Deletes)
}

func TestMemory_SweeperRemovesExpired(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[int](Options{TTL: 5 * time.Millisecond, SweepInterval: 10 * time.Millisecond})
	defer m.Destroy()

	require.NoError(t, m.Set(ctx, "a", 1, 0))
	assert.Eventually(t, func() bool {
		return m.Stats().Size == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMemory_DestroyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[int](Options{})
	require.NoError(t, m.Set(ctx, "a", 1, 0))

	m.Destroy()
	m.Destroy()
	assert.Equal(t, 0, m.Stats().Size)
}

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, SweepInterval(time.Millisecond))
	assert.Equal(t, 25*time.Millisecond, SweepInterval(100*time.Millisecond))
	assert.Equal(t, time.Minute, SweepInterval(time.Hour))
}
