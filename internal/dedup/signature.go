// Package dedup filters ledger entries already present in a collection.
package dedup

import (
	"strings"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/ingest"
)

const separator = "|"

// Signature is the content identity of an entry: date, account, description
// and both amounts. It ignores ID, import position and creation time, so the
// same source row imported twice yields the same signature.
func Signature(e *entity.LedgerEntry) string {
	date := "-"
	if e.Date != nil {
		date = e.Date.Format("2006-01-02")
	}
	account := normalize(e.AccountNumber)
	if account == "" {
		account = normalize(e.CounterpartyName)
	}
	return strings.Join([]string{
		date,
		account,
		normalize(e.Description),
		e.Debit.StringFixed(2),
		e.Credit.StringFixed(2),
	}, separator)
}

func normalize(s string) string {
	return strings.ReplaceAll(ingest.NormalizeHeader(s), separator, " ")
}

// Sign computes and stores the signature of every entry in place.
func Sign(entries []entity.LedgerEntry) {
	for i := range entries {
		entries[i].Signature = Signature(&entries[i])
	}
}
