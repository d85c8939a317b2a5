package textgen

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	openai "github.com/sashabaranov/go-openai"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/resilience"
)

type fakeProvider struct {
	name      string
	available bool
	errs      []error
	calls     int
	message   string
}

func (f *fakeProvider) Name() string                     { return f.name }
func (f *fakeProvider) IsAvailable(context.Context) bool { return f.available }

func (f *fakeProvider) next() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeProvider) GenerateJustificationMessage(context.Context, MessageContext) (string, error) {
	if err := f.next(); err != nil {
		return "", err
	}
	return f.message, nil
}

func (f *fakeProvider) AnalyzeDescription(context.Context, string, decimal.Decimal) (entity.AIMeta, error) {
	if err := f.next(); err != nil {
		return entity.AIMeta{}, err
	}
	return entity.AIMeta{SuspiciousLevel: "HIGH", Reasons: []string{"model"}}, nil
}

func (f *fakeProvider) GenerateSuggestions(context.Context, []entity.LedgerEntry) ([]string, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return []string{"from " + f.name}, nil
}

type recordedCall struct{ provider, op, outcome string }

type fakeRecorder struct{ calls []recordedCall }

func (r *fakeRecorder) ObserveProviderCall(provider, op, outcome string, _ time.Duration) {
	r.calls = append(r.calls, recordedCall{provider, op, outcome})
}

var fastRetry = resilience.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func sampleContext() MessageContext {
	d := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	return MessageContext{
		CounterpartyName: "Dupont SARL",
		Amount:           decimal.NewFromInt(500),
		Date:             &d,
		Description:      "Achat",
		Type:             entity.RequestTypeInvoice,
	}
}

func TestChain_UsesFirstAvailableProvider(t *testing.T) {
	down := &fakeProvider{name: ProviderLocal, available: false}
	cloud := &fakeProvider{name: ProviderOpenAI, available: true, message: "Bonjour"}
	chain := NewChain([]Provider{down, cloud}, zap.NewNop(), WithRetry(fastRetry))

	msg := chain.GenerateJustificationMessage(context.Background(), sampleContext())

	assert.Equal(t, Message{Text: "Bonjour", Provider: ProviderOpenAI, IsGeneratedByModel: true}, msg)
	assert.Equal(t, 0, down.calls)
}

func TestChain_RetriesRetryableErrors(t *testing.T) {
	flaky := &fakeProvider{
		name:      ProviderAgent,
		available: true,
		errs:      []error{&StatusError{StatusCode: http.StatusServiceUnavailable}, context.DeadlineExceeded},
		message:   "ok",
	}
	rec := &fakeRecorder{}
	chain := NewChain([]Provider{flaky}, zap.NewNop(), WithRetry(fastRetry), WithRecorder(rec))

	msg := chain.GenerateJustificationMessage(context.Background(), sampleContext())

	assert.Equal(t, "ok", msg.Text)
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, []recordedCall{{ProviderAgent, "justification_message", "success"}}, rec.calls)
}

func TestChain_AuthErrorFallsBackToTemplate(t *testing.T) {
	rejected := &fakeProvider{
		name:      ProviderOpenAI,
		available: true,
		errs:      []error{&openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}},
	}
	local := &fakeProvider{name: ProviderLocal, available: true, message: "local draft"}
	rec := &fakeRecorder{}
	chain := NewChain([]Provider{rejected, local}, zap.NewNop(), WithRetry(fastRetry), WithRecorder(rec))

	msg := chain.GenerateJustificationMessage(context.Background(), sampleContext())

	assert.Equal(t, 1, rejected.calls)
	assert.Equal(t, 0, local.calls)
	assert.Equal(t, ProviderTemplate, msg.Provider)
	assert.False(t, msg.IsGeneratedByModel)
	assert.NotEmpty(t, msg.Text)
	assert.Equal(t, []recordedCall{
		{ProviderOpenAI, "justification_message", KindAuth.String()},
		{ProviderTemplate, "justification_message", "success"},
	}, rec.calls)
}

func TestChain_RetryExhaustionFallsBackToTemplate(t *testing.T) {
	unavailable := &StatusError{StatusCode: http.StatusServiceUnavailable}
	flaky := &fakeProvider{
		name:      ProviderAgent,
		available: true,
		errs:      []error{unavailable, unavailable, unavailable, unavailable},
	}
	second := &fakeProvider{name: ProviderLocal, available: true, message: "local draft"}
	chain := NewChain([]Provider{flaky, second}, zap.NewNop(), WithRetry(fastRetry))

	s := chain.GenerateSuggestions(context.Background(), nil)

	assert.Equal(t, fastRetry.MaxAttempts, flaky.calls)
	assert.Equal(t, 0, second.calls)
	assert.Equal(t, ProviderTemplate, s.Provider)
	assert.False(t, s.IsGeneratedByModel)
	assert.NotEmpty(t, s.Items)
}

func TestChain_FallsBackToTemplate(t *testing.T) {
	quota := &fakeProvider{
		name:      ProviderOpenAI,
		available: true,
		errs:      []error{&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Code: "insufficient_quota"}},
	}
	chain := NewChain([]Provider{quota}, zap.NewNop(), WithRetry(fastRetry), WithFallback(NewTemplateProvider("€")))

	msg := chain.GenerateJustificationMessage(context.Background(), sampleContext())

	assert.Equal(t, 1, quota.calls)
	assert.Equal(t, ProviderTemplate, msg.Provider)
	assert.False(t, msg.IsGeneratedByModel)
	assert.NotEmpty(t, msg.Text)
	assert.Contains(t, msg.Text, "Dupont SARL")
	assert.Contains(t, msg.Text, "500,00 €")
	assert.Contains(t, msg.Text, "06/01/2024")
}

func TestChain_NoProvidersIsNeverEmpty(t *testing.T) {
	chain := NewChain(nil, zap.NewNop())
	ctx := context.Background()

	msg := chain.GenerateJustificationMessage(ctx, MessageContext{})
	assert.NotEmpty(t, msg.Text)

	meta, err := chain.AnalyzeDescription(ctx, "Divers", decimal.NewFromInt(300))
	require.NoError(t, err)
	assert.Equal(t, ProviderTemplate, meta.Provider)
	assert.Equal(t, entity.SuspiciousHigh, meta.SuspiciousLevel)

	s := chain.GenerateSuggestions(ctx, nil)
	assert.NotEmpty(t, s.Items)
	assert.Equal(t, ProviderTemplate, s.Provider)
}

func TestChain_AnalyzeDescriptionNormalizesModelOutput(t *testing.T) {
	p := &fakeProvider{name: ProviderOpenAI, available: true}
	chain := NewChain([]Provider{p}, zap.NewNop(), WithRetry(fastRetry))

	meta, err := chain.AnalyzeDescription(context.Background(), "Achat", decimal.NewFromInt(500))
	require.NoError(t, err)
	assert.Equal(t, entity.SuspiciousHigh, meta.SuspiciousLevel)
	assert.Equal(t, ProviderOpenAI, meta.Provider)
}

func TestChain_AnalyzeDescriptionCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChain(nil, zap.NewNop()).AnalyzeDescription(ctx, "Achat", decimal.NewFromInt(500))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChain_Status(t *testing.T) {
	chain := NewChain([]Provider{
		&fakeProvider{name: ProviderOpenAI, available: false},
		NewTemplateProvider(""),
	}, zap.NewNop())

	assert.Equal(t, []ProviderStatus{
		{Name: ProviderOpenAI, Available: false},
		{Name: ProviderTemplate, Available: true},
	}, chain.Status(context.Background()))
}

func TestOrderByPriority(t *testing.T) {
	a := &fakeProvider{name: ProviderOpenAI}
	b := &fakeProvider{name: ProviderLocal}
	c := &fakeProvider{name: ProviderAgent}

	got := OrderByPriority([]Provider{a, b, c}, []string{ProviderLocal, ProviderOpenAI})
	require.Len(t, got, 2)
	assert.Equal(t, ProviderLocal, got[0].Name())
	assert.Equal(t, ProviderOpenAI, got[1].Name())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, KindAuth},
		{"quota", &openai.APIError{HTTPStatusCode: 429, Type: "insufficient_quota"}, KindQuota},
		{"rate limited", &openai.APIError{HTTPStatusCode: 429, Type: "requests"}, KindRetryable},
		{"server error", &openai.RequestError{HTTPStatusCode: 503}, KindRetryable},
		{"bad request", &StatusError{StatusCode: 400}, KindInvalid},
		{"timeout", resilience.ErrAttemptTimeout, KindRetryable},
		{"not configured", ErrNotConfigured, KindUnavailable},
		{"wrapped", NewProviderError(ProviderAgent, &StatusError{StatusCode: 403}), KindAuth},
		{"unknown", errors.New("connection reset"), KindRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
