package dedup

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
)

func entry(id, account, desc string, debit int64) entity.LedgerEntry {
	d := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	return entity.LedgerEntry{
		ID:            id,
		Date:          &d,
		AccountNumber: account,
		Description:   desc,
		Debit:         decimal.NewFromInt(debit),
	}
}

func TestSignature_Stable(t *testing.T) {
	a := entry("1", "411DUP", "Achat", 500)
	b := entry("2", " 411dup ", "ACHAT", 500)
	b.ImportIndex = 40
	b.CreatedAt = time.Now()

	assert.Equal(t, "2024-01-06|411dup|achat|500.00|0.00", Signature(&a))
	assert.Equal(t, Signature(&a), Signature(&b))

	c := entry("3", "411DUP", "Achat", 501)
	assert.NotEqual(t, Signature(&a), Signature(&c))
}

func TestSignature_FallsBackToName(t *testing.T) {
	e := entity.LedgerEntry{CounterpartyName: "Dupont", Credit: decimal.RequireFromString("1.5")}
	assert.Equal(t, "-|dupont||0.00|1.50", Signature(&e))
}

func TestDedupBySignature(t *testing.T) {
	existing := []entity.LedgerEntry{entry("s1", "411", "Achat", 500)}
	Sign(existing)
	set := NewSignatureSet(existing[0].Signature)

	batch := []entity.LedgerEntry{
		entry("n1", "411", "Achat", 500),
		entry("n2", "411", "Achat", 600),
		entry("n3", "411", "Achat", 600),
		entry("n4", "512", "Frais", 12),
	}
	result := Entries(batch, set)

	require.Len(t, result.Unique, 2)
	assert.Equal(t, "n2", result.Unique[0].ID)
	assert.Equal(t, "n4", result.Unique[1].ID)
	require.Len(t, result.Duplicates, 2)
	assert.Equal(t, "n1", result.Duplicates[0].ID)
	assert.Equal(t, "n3", result.Duplicates[1].ID)
	assert.Equal(t, 1, set.Len(), "existing set is not modified")
}

func TestDedupBySignature_Idempotent(t *testing.T) {
	batch := []entity.LedgerEntry{
		entry("a", "411", "Achat", 500),
		entry("b", "411", "Règlement", 120),
		entry("c", "411", "Achat", 500),
	}
	Sign(batch)

	first := Entries(batch, NewSignatureSet())
	stored := make([]entity.ClassifiedEntry, 0, len(first.Unique))
	for _, e := range first.Unique {
		stored = append(stored, entity.Plain(e))
	}

	second := Entries(batch, SetOf(stored))
	assert.Empty(t, second.Unique)
	assert.Len(t, second.Duplicates, len(batch))
}

func TestDedupBySignature_Generic(t *testing.T) {
	result := DedupBySignature([]string{"a", "b", "a", "c"}, func(s string) string { return s }, NewSignatureSet("c"))
	assert.Equal(t, []string{"a", "b"}, result.Unique)
	assert.Equal(t, []string{"a", "c"}, result.Duplicates)
}
