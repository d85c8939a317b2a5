package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one canonical accounting line of a client, supplier or misc ledger.
type LedgerEntry struct {
	ID               string          `json:"id"`
	ClientID         string          `json:"client_id"`
	Variant          Variant         `json:"variant"`
	Date             *time.Time      `json:"date,omitempty"`
	AccountNumber    string          `json:"account_number"`
	CounterpartyName string          `json:"counterparty_name"`
	Description      string          `json:"description"`
	Debit            decimal.Decimal `json:"debit"`
	Credit           decimal.Decimal `json:"credit"`
	Balance          decimal.Decimal `json:"balance"`
	Reference        string          `json:"reference"`
	Signature        string          `json:"signature"`
	Justified        bool            `json:"justified"`
	JustifiedAt      *time.Time      `json:"justified_at,omitempty"`
	ImportIndex      int             `json:"import_index"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Amount returns the non-zero side of the entry, debit first.
func (e *LedgerEntry) Amount() decimal.Decimal {
	if e.Debit.IsPositive() {
		return e.Debit
	}
	return e.Credit
}

// DateString formats the entry date as YYYY-MM-DD, or "" when absent.
func (e *LedgerEntry) DateString() string {
	if e.Date == nil {
		return ""
	}
	return e.Date.Format("2006-01-02")
}

// AccountKey identifies the counterparty account: number when known, name otherwise.
func (e *LedgerEntry) AccountKey() string {
	if e.AccountNumber != "" {
		return e.AccountNumber
	}
	return e.CounterpartyName
}
