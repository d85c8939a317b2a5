package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/resilience"
	"github.com/garyjia/ledger-backoffice/internal/textgen"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cb := resilience.NewCircuitBreaker("agent-test", resilience.BreakerConfig{})
	return NewClient(srv.Client(), srv.URL+"/", "token", cb, zap.NewNop())
}

func TestClient_GenerateJustificationMessage(t *testing.T) {
	var got justificationRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/justification", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"message":" Bonjour "}`))
	}))

	msg, err := c.GenerateJustificationMessage(context.Background(), textgen.MessageContext{
		CounterpartyName: "ACME",
		Type:             entity.RequestTypePayment,
		Amount:           decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", msg)
	assert.Equal(t, "ACME", got.Context.CounterpartyName)
	assert.True(t, got.Context.Amount.Equal(decimal.NewFromInt(100)))
}

func TestClient_AnalyzeDescription(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/analyze", r.URL.Path)
		_, _ = w.Write([]byte(`{"suspicious_level":"weird","reasons":["r"]}`))
	}))

	meta, err := c.AnalyzeDescription(context.Background(), "divers", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, entity.NormalizeSuspiciousLevel("weird"), meta.SuspiciousLevel)
	assert.Equal(t, textgen.ProviderAgent, meta.Provider)
}

func TestClient_GenerateSuggestionsEmpty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"suggestions":[]}`))
	}))

	_, err := c.GenerateSuggestions(context.Background(), []entity.LedgerEntry{{Description: "x"}})
	assert.ErrorIs(t, err, textgen.ErrEmptyResponse)
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   textgen.Kind
	}{
		{http.StatusUnauthorized, "nope", textgen.KindAuth},
		{http.StatusTooManyRequests, "quota exceeded", textgen.KindQuota},
		{http.StatusServiceUnavailable, "busy", textgen.KindRetryable},
		{http.StatusBadRequest, "bad", textgen.KindInvalid},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tt.body, tt.status)
			}))

			_, err := c.AnalyzeDescription(context.Background(), "x", decimal.Zero)
			require.Error(t, err)
			assert.Equal(t, tt.want, textgen.KindOf(err))
		})
	}
}

func TestClient_IsAvailable(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	assert.True(t, c.IsAvailable(context.Background()))
	healthy.Store(false)
	assert.False(t, c.IsAvailable(context.Background()))
}

func TestClient_Unconfigured(t *testing.T) {
	c := NewClient(http.DefaultClient, "", "", resilience.NewCircuitBreaker("x", resilience.BreakerConfig{}), zap.NewNop())
	assert.False(t, c.IsAvailable(context.Background()))

	_, err := c.GenerateJustificationMessage(context.Background(), textgen.MessageContext{})
	assert.Equal(t, textgen.KindUnavailable, textgen.KindOf(err))
}
