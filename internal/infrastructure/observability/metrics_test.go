package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/ledger-backoffice/internal/application/service"
	"github.com/garyjia/ledger-backoffice/internal/cache"
	"github.com/garyjia/ledger-backoffice/internal/textgen"
)

var (
	_ cache.Recorder         = (*Metrics)(nil)
	_ textgen.Recorder       = (*Metrics)(nil)
	_ service.ImportRecorder = (*Metrics)(nil)
)

func TestNewMetrics_PrivateRegistry(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	assert.NotSame(t, a.Registry, b.Registry)
}

func TestMetrics_ObserveImport(t *testing.T) {
	m := NewMetrics()
	m.ObserveImport("supplier", "ok", 3, 2, 1)
	m.ObserveImport("supplier", "ok", 1, 0, 0)

	assert.Equal(t, 2.0, CounterValue(m.importsTotal, "supplier", "ok"))
	assert.Equal(t, 4.0, CounterValue(m.importedRows, "supplier", "added"))
	assert.Equal(t, 2.0, CounterValue(m.importedRows, "supplier", "duplicate"))
	assert.Equal(t, 1.0, CounterValue(m.importedRows, "supplier", "skipped"))
}

func TestMetrics_ProviderAndCache(t *testing.T) {
	m := NewMetrics()
	m.ObserveProviderCall("openai", "suggestions", "error", 20*time.Millisecond)
	m.CacheHit("ledger")
	m.CacheHit("ledger")
	m.CacheMiss("ledger")
	m.CacheEviction("ledger", "expired")

	assert.Equal(t, 1.0, CounterValue(m.providerCalls, "openai", "suggestions", "error"))
	assert.Equal(t, 2.0, CounterValue(m.cacheHits, "ledger"))
	assert.Equal(t, 1.0, CounterValue(m.cacheMisses, "ledger"))
	assert.Equal(t, 1.0, CounterValue(m.cacheEvictions, "ledger", "expired"))

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["textgen_provider_duration_seconds"])
	assert.True(t, names["cache_evictions_total"])
}
