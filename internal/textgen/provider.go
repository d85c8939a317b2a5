// Package textgen drafts justification messages and analyses entry
// descriptions through an ordered chain of interchangeable backends.
package textgen

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
)

// Provider names
const (
	ProviderOpenAI   = "openai"
	ProviderLocal    = "local"
	ProviderAgent    = "agent"
	ProviderTemplate = "template"
)

// MessageContext is what a backend knows about the entry it writes about.
type MessageContext struct {
	CounterpartyName string          `json:"counterparty_name"`
	AccountNumber    string          `json:"account_number,omitempty"`
	Variant          entity.Variant  `json:"variant"`
	Amount           decimal.Decimal `json:"amount"`
	Date             *time.Time      `json:"date,omitempty"`
	Description      string          `json:"description"`
	Reference        string          `json:"reference,omitempty"`
	Type             string          `json:"type"`
}

// MessageContextFor builds the context of a request about e.
func MessageContextFor(e *entity.LedgerEntry, requestType string) MessageContext {
	return MessageContext{
		CounterpartyName: e.CounterpartyName,
		AccountNumber:    e.AccountNumber,
		Variant:          e.Variant,
		Amount:           e.Amount(),
		Date:             e.Date,
		Description:      e.Description,
		Reference:        e.Reference,
		Type:             requestType,
	}
}

// Provider is one text-generation backend.
type Provider interface {
	// Name identifies the backend in configuration and provenance.
	Name() string

	// IsAvailable is a cheap probe; an unavailable provider is skipped.
	IsAvailable(ctx context.Context) bool

	GenerateJustificationMessage(ctx context.Context, mc MessageContext) (string, error)
	AnalyzeDescription(ctx context.Context, text string, amount decimal.Decimal) (entity.AIMeta, error)
	GenerateSuggestions(ctx context.Context, entries []entity.LedgerEntry) ([]string, error)
}

// Message is a drafted justification message with its provenance.
type Message struct {
	Text               string `json:"text"`
	Provider           string `json:"provider"`
	IsGeneratedByModel bool   `json:"is_generated_by_model"`
}

// Suggestions are follow-up recommendations for a ledger.
type Suggestions struct {
	Items              []string `json:"items"`
	Provider           string   `json:"provider"`
	IsGeneratedByModel bool     `json:"is_generated_by_model"`
}

// ProviderStatus is reported by health checks.
type ProviderStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}
