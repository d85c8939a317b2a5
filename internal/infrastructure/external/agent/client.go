// Package agent calls a remote text-generation agent over HTTP.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/resilience"
	"github.com/garyjia/ledger-backoffice/internal/textgen"
)

var tracer = otel.Tracer("agent")

const maxErrorBody = 512

// Client implements textgen.Provider against an agent service exposing
// /v1/justification, /v1/analyze, /v1/suggestions and /health.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient creates a new agent client. An empty baseURL leaves it unavailable.
func NewClient(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		cb:         cb,
		logger:     logger.With(zap.String("provider", textgen.ProviderAgent)),
	}
}

func (c *Client) Name() string { return textgen.ProviderAgent }

// IsAvailable is false when unconfigured or while the breaker is open.
// Otherwise it asks /health.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if c.baseURL == "" || resilience.IsOpen(c.cb) {
		return false
	}
	err := c.call(ctx, "AgentClient.Health", http.MethodGet, "/health", nil, nil)
	if err != nil {
		c.logger.Debug("Agent health check failed", zap.Error(err))
		return false
	}
	return true
}

type justificationRequest struct {
	Context textgen.MessageContext `json:"context"`
}

type justificationResponse struct {
	Message string `json:"message"`
}

func (c *Client) GenerateJustificationMessage(ctx context.Context, mc textgen.MessageContext) (string, error) {
	var resp justificationResponse
	if err := c.call(ctx, "AgentClient.Justification", http.MethodPost, "/v1/justification", justificationRequest{Context: mc}, &resp); err != nil {
		return "", err
	}
	msg := strings.TrimSpace(resp.Message)
	if msg == "" {
		return "", textgen.NewProviderError(c.Name(), textgen.ErrEmptyResponse)
	}
	return msg, nil
}

type analyzeRequest struct {
	Text   string          `json:"text"`
	Amount decimal.Decimal `json:"amount"`
}

type analyzeResponse struct {
	SuspiciousLevel string   `json:"suspicious_level"`
	Reasons         []string `json:"reasons"`
	Suggestions     []string `json:"suggestions"`
}

func (c *Client) AnalyzeDescription(ctx context.Context, text string, amount decimal.Decimal) (entity.AIMeta, error) {
	var resp analyzeResponse
	if err := c.call(ctx, "AgentClient.Analyze", http.MethodPost, "/v1/analyze", analyzeRequest{Text: text, Amount: amount}, &resp); err != nil {
		return entity.AIMeta{}, err
	}
	return entity.AIMeta{
		SuspiciousLevel: entity.NormalizeSuspiciousLevel(resp.SuspiciousLevel),
		Reasons:         resp.Reasons,
		Suggestions:     resp.Suggestions,
		Provider:        c.Name(),
	}, nil
}

type suggestionsRequest struct {
	Entries []entity.LedgerEntry `json:"entries"`
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

func (c *Client) GenerateSuggestions(ctx context.Context, entries []entity.LedgerEntry) ([]string, error) {
	var resp suggestionsResponse
	if err := c.call(ctx, "AgentClient.Suggestions", http.MethodPost, "/v1/suggestions", suggestionsRequest{Entries: entries}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Suggestions) == 0 {
		return nil, textgen.NewProviderError(c.Name(), textgen.ErrEmptyResponse)
	}
	return resp.Suggestions, nil
}

// call runs one request through the breaker. Retries belong to the chain.
func (c *Client) call(ctx context.Context, spanName, method, path string, in, out any) error {
	if c.baseURL == "" {
		return textgen.NewProviderError(c.Name(), textgen.ErrNotConfigured)
	}

	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method), attribute.String("agent.path", path)),
	)
	defer span.End()

	_, err := c.cb.Execute(func() (any, error) {
		var body io.Reader
		if in != nil {
			data, err := json.Marshal(in)
			if err != nil {
				return nil, err
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, &textgen.StatusError{StatusCode: resp.StatusCode, Body: string(detail)}
		}
		if out == nil {
			return nil, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode agent response: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return textgen.NewProviderError(c.Name(), err)
	}
	return nil
}

var _ textgen.Provider = (*Client)(nil)
