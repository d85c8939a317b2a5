package cache

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/infrastructure/resilience"
)

// fakeRowServer is a minimal PostgREST stand-in for the cache table.
type fakeRowServer struct {
	mu     sync.Mutex
	rows   map[string]remoteRow
	seq    map[string]int
	next   int
	apiKey string
	fail   bool
}

func newFakeRowServer() *fakeRowServer {
	return &fakeRowServer{rows: map[string]remoteRow{}, seq: map[string]int{}, apiKey: "secret"}
}

func (f *fakeRowServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		http.Error(w, "down", http.StatusServiceUnavailable)
		return
	}
	if r.Header.Get("apikey") != f.apiKey || r.Header.Get("Authorization") != "Bearer "+f.apiKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.URL.Path != "/rest/v1/cache_items" {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	ns := strings.TrimPrefix(q.Get("namespace"), "eq.")
	match := func(row remoteRow) bool {
		if row.Namespace != ns {
			return false
		}
		key := q.Get("key")
		switch {
		case key == "":
			return true
		case strings.HasPrefix(key, "eq."):
			return row.Key == strings.TrimPrefix(key, "eq.")
		case strings.HasPrefix(key, "in."):
			list := strings.TrimSuffix(strings.TrimPrefix(key, "in.("), ")")
			for _, k := range strings.Split(list, ",") {
				if strings.Trim(k, `"`) == row.Key {
					return true
				}
			}
		}
		return false
	}

	switch r.Method {
	case http.MethodGet:
		var out []remoteRow
		for id, row := range f.rows {
			if match(row) {
				row.Key = strings.TrimPrefix(id, row.Namespace+"/")
				out = append(out, row)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			return f.seq[out[i].Namespace+"/"+out[i].Key] < f.seq[out[j].Namespace+"/"+out[j].Key]
		})
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		var rows []remoteRow
		if err := json.Unmarshal(body, &rows); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, row := range rows {
			id := row.Namespace + "/" + row.Key
			f.rows[id] = row
			f.next++
			f.seq[id] = f.next
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		for id, row := range f.rows {
			if match(row) {
				delete(f.rows, id)
				delete(f.seq, id)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestRowStore(t *testing.T, srv *httptest.Server, opts Options) *RowStore[string] {
	t.Helper()
	cb := resilience.NewCircuitBreaker("rowstore-test", resilience.BreakerConfig{})
	s := NewRowStore[string](srv.Client(), RowStoreConfig{
		BaseURL:   srv.URL,
		APIKey:    "secret",
		Table:     "cache_items",
		Namespace: "ledger",
	}, cb, opts, zap.NewNop())
	t.Cleanup(s.Destroy)
	return s
}

func TestRowStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRowServer()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	s := newTestRowStore(t, srv, Options{})

	_, ok := s.Get(ctx, "c1")
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "c1", "snapshot", 0))
	v, ok := s.Get(ctx, "c1")
	require.True(t, ok)
	assert.Equal(t, "snapshot", v)

	require.NoError(t, s.Set(ctx, "c1", "updated", 0))
	v, _ = s.Get(ctx, "c1")
	assert.Equal(t, "updated", v)

	st := s.Stats()
	assert.Equal(t, "ledger", st.Name)
	assert.Equal(t, 1, st.Size)
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
}

func TestRowStore_Expiry(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRowServer()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	clock := newFakeClock()
	s := newTestRowStore(t, srv, Options{TTL: time.Minute, Clock: clock.Now})

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	clock.Advance(2 * time.Minute)

	assert.False(t, s.Has(ctx, "k"))
	assert.Empty(t, fake.rows)
}

func TestRowStore_SubMillisecondTTLExpires(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRowServer()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	clock := newFakeClock()
	s := newTestRowStore(t, srv, Options{TTL: time.Hour, Clock: clock.Now})

	require.NoError(t, s.Set(ctx, "k", "v", 500*time.Microsecond))
	clock.Advance(5 * time.Millisecond)

	assert.False(t, s.Has(ctx, "k"))
}

func TestRowStore_EvictAndClear(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRowServer()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	s := newTestRowStore(t, srv, Options{MaxSize: 2})

	require.NoError(t, s.Set(ctx, "ledger:c1:client", "a", 0))
	require.NoError(t, s.Set(ctx, "ledger:c1:supplier", "b", 0))
	require.NoError(t, s.Set(ctx, "ledger:c2:client", "c", 0))

	assert.False(t, s.Has(ctx, "ledger:c1:client"))
	assert.Equal(t, int64(1), s.Stats().Evictions)

	n, err := s.Clear(ctx, "ledger:c1:*")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, s.Has(ctx, "ledger:c2:client"))
}

func TestRowStore_ServerErrors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRowServer()
	fake.fail = true
	srv := httptest.NewServer(fake)
	defer srv.Close()
	s := newTestRowStore(t, srv, Options{})

	assert.Error(t, s.Set(ctx, "k", "v", 0))
	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)
	assert.Error(t, s.Delete(ctx, "k"))
}
