package textgen

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/resilience"
)

var tracer = otel.Tracer("textgen")

// Recorder receives one observation per provider call.
type Recorder interface {
	ObserveProviderCall(provider, operation, outcome string, elapsed time.Duration)
}

// Chain tries its providers in priority order and falls back to the
// template provider when none of them produces a result.
type Chain struct {
	providers []Provider
	fallback  *TemplateProvider
	retry     resilience.Config
	recorder  Recorder
	logger    *zap.Logger
}

// ChainOption customises a Chain.
type ChainOption func(*Chain)

// WithRetry sets the per-provider retry policy.
func WithRetry(cfg resilience.Config) ChainOption {
	return func(c *Chain) { c.retry = cfg }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) ChainOption {
	return func(c *Chain) { c.recorder = r }
}

// WithFallback replaces the default template provider.
func WithFallback(t *TemplateProvider) ChainOption {
	return func(c *Chain) { c.fallback = t }
}

// NewChain creates a chain over providers, which must already be in
// priority order. Template providers in the list are dropped since the
// fallback always closes the chain.
func NewChain(providers []Provider, logger *zap.Logger, opts ...ChainOption) *Chain {
	c := &Chain{
		fallback: NewTemplateProvider(""),
		retry: resilience.Config{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			AttemptTimeout: 30 * time.Second,
		},
		logger: logger,
	}
	for _, p := range providers {
		if p != nil && p.Name() != ProviderTemplate {
			c.providers = append(c.providers, p)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OrderByPriority returns the providers named in priority, in that order.
// Providers not named are left out.
func OrderByPriority(providers []Provider, priority []string) []Provider {
	rank := make(map[string]int, len(priority))
	for i, name := range priority {
		if _, dup := rank[name]; !dup {
			rank[name] = i
		}
	}
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if _, ok := rank[p.Name()]; ok {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return rank[out[i].Name()] < rank[out[j].Name()] })
	return out
}

// GenerateJustificationMessage always returns a non-empty message.
func (c *Chain) GenerateJustificationMessage(ctx context.Context, mc MessageContext) Message {
	text, name, ok := run(ctx, c, "justification_message", func(ctx context.Context, p Provider) (string, error) {
		s, err := p.GenerateJustificationMessage(ctx, mc)
		if err == nil && s == "" {
			err = ErrEmptyResponse
		}
		return s, err
	})
	if ok {
		return Message{Text: text, Provider: name, IsGeneratedByModel: true}
	}
	return Message{Text: c.fallback.Message(mc), Provider: ProviderTemplate}
}

// AnalyzeDescription returns a model assessment, or the template heuristics
// when no model answers. It only fails when ctx is done.
func (c *Chain) AnalyzeDescription(ctx context.Context, text string, amount decimal.Decimal) (entity.AIMeta, error) {
	meta, name, ok := run(ctx, c, "analyze_description", func(ctx context.Context, p Provider) (entity.AIMeta, error) {
		return p.AnalyzeDescription(ctx, text, amount)
	})
	if ok {
		meta.Provider = name
		meta.SuspiciousLevel = entity.NormalizeSuspiciousLevel(meta.SuspiciousLevel)
		return meta, nil
	}
	if err := ctx.Err(); err != nil {
		return entity.AIMeta{}, err
	}
	return c.fallback.Analyze(text, amount), nil
}

// GenerateSuggestions always returns at least one suggestion.
func (c *Chain) GenerateSuggestions(ctx context.Context, entries []entity.LedgerEntry) Suggestions {
	items, name, ok := run(ctx, c, "suggestions", func(ctx context.Context, p Provider) ([]string, error) {
		s, err := p.GenerateSuggestions(ctx, entries)
		if err == nil && len(s) == 0 {
			err = ErrEmptyResponse
		}
		return s, err
	})
	if ok {
		return Suggestions{Items: items, Provider: name, IsGeneratedByModel: true}
	}
	return Suggestions{Items: c.fallback.Suggest(entries), Provider: ProviderTemplate}
}

// Status probes every provider, the fallback included.
func (c *Chain) Status(ctx context.Context) []ProviderStatus {
	out := make([]ProviderStatus, 0, len(c.providers)+1)
	for _, p := range c.providers {
		out = append(out, ProviderStatus{Name: p.Name(), Available: p.IsAvailable(ctx)})
	}
	return append(out, ProviderStatus{Name: ProviderTemplate, Available: true})
}

// run calls the first available provider with retries. Unavailable providers
// are skipped, but once one is called its failure ends the chain: ok is false
// and the caller answers from the template.
func run[T any](ctx context.Context, c *Chain, op string, call func(context.Context, Provider) (T, error)) (T, string, bool) {
	ctx, span := tracer.Start(ctx, "Chain."+op)
	defer span.End()

	var zero T
	for _, p := range c.providers {
		if ctx.Err() != nil {
			break
		}
		if !p.IsAvailable(ctx) {
			c.logger.Debug("Provider unavailable, skipping",
				zap.String("provider", p.Name()),
				zap.String("operation", op))
			continue
		}

		var result T
		start := time.Now()
		err := resilience.RetryWithBackoff(ctx, c.retry, IsRetryable, func(ctx context.Context) error {
			var err error
			result, err = call(ctx, p)
			return err
		})
		c.observe(p.Name(), op, err, time.Since(start))

		if err == nil {
			span.SetAttributes(attribute.String("textgen.provider", p.Name()))
			return result, p.Name(), true
		}
		c.logger.Warn("Provider call failed, falling back to template",
			zap.String("provider", p.Name()),
			zap.String("operation", op),
			zap.String("kind", KindOf(err).String()),
			zap.Error(err))
		break
	}

	span.SetAttributes(attribute.String("textgen.provider", ProviderTemplate))
	c.observe(ProviderTemplate, op, nil, 0)
	return zero, "", false
}

func (c *Chain) observe(provider, op string, err error, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	c.recorder.ObserveProviderCall(provider, op, outcome, elapsed)
}
