package textgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/garyjia/ledger-backoffice/internal/infrastructure/resilience"
)

// Kind groups provider failures by what the chain should do next.
type Kind int

const (
	// KindRetryable covers network errors, timeouts, rate limiting and 5xx
	KindRetryable Kind = iota
	// KindAuth is a rejected credential
	KindAuth
	// KindQuota is an exhausted account quota
	KindQuota
	// KindInvalid is a request the backend will never accept
	KindInvalid
	// KindUnavailable is a backend switched off or behind an open breaker
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindInvalid:
		return "invalid"
	case KindUnavailable:
		return "unavailable"
	}
	return "unknown"
}

var (
	// ErrEmptyResponse is returned when a backend answers without content
	ErrEmptyResponse = errors.New("empty response")

	// ErrNotConfigured is returned by a backend missing its endpoint or key
	ErrNotConfigured = errors.New("provider not configured")
)

// ProviderError attaches the backend name and failure kind to an error.
type ProviderError struct {
	Provider string
	Kind     Kind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err with its classified kind.
func NewProviderError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindOf(err), Err: err}
}

// KindOf classifies err. Unknown errors are treated as retryable.
func KindOf(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, ErrNotConfigured) || resilience.IsBreakerRejection(err) {
		return KindUnavailable
	}
	if errors.Is(err, resilience.ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return KindRetryable
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return KindForStatus(apiErr.HTTPStatusCode, fmt.Sprint(apiErr.Code)+" "+apiErr.Type)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return KindForStatus(reqErr.HTTPStatusCode, string(reqErr.Body))
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return KindForStatus(statusErr.StatusCode, statusErr.Body)
	}

	return KindRetryable
}

// KindForStatus maps an HTTP status and an error detail onto a Kind.
// A 429 whose detail mentions quota is exhausted credit, not rate limiting.
func KindForStatus(status int, detail string) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		if strings.Contains(strings.ToLower(detail), "quota") {
			return KindQuota
		}
		return KindRetryable
	case status == http.StatusRequestTimeout, status >= 500:
		return KindRetryable
	case status >= 400:
		return KindInvalid
	}
	return KindRetryable
}

// IsRetryable reports whether another attempt on the same backend may help.
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryable
}

// StatusError is a non-2xx answer from an HTTP backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}
