package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVariant(t *testing.T) {
	tests := []struct {
		in   string
		want Variant
	}{
		{"client", VariantClient},
		{" Fournisseurs ", VariantSupplier},
		{"DIVERS", VariantMisc},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVariant(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseVariant("bank")
	assert.ErrorIs(t, err, ErrInvalidVariant)
}

func TestAnalysis(t *testing.T) {
	e := LedgerEntry{ID: "e1", Debit: decimal.NewFromInt(10)}

	_, ok := Analysis(Plain(e))
	assert.False(t, ok)

	meta, ok := Analysis(Analyzed(e, AIMeta{SuspiciousLevel: SuspiciousHigh}))
	require.True(t, ok)
	assert.Equal(t, SuspiciousHigh, meta.SuspiciousLevel)
	assert.Equal(t, "e1", Analyzed(e, meta).Entry().ID)
}

func TestLedgerEntry_Amount(t *testing.T) {
	debit := LedgerEntry{Debit: decimal.NewFromInt(500)}
	credit := LedgerEntry{Credit: decimal.RequireFromString("120.50")}

	assert.True(t, debit.Amount().Equal(decimal.NewFromInt(500)))
	assert.True(t, credit.Amount().Equal(decimal.RequireFromString("120.5")))
}

func TestNormalizeSuspiciousLevel(t *testing.T) {
	assert.Equal(t, SuspiciousHigh, NormalizeSuspiciousLevel("HIGH"))
	assert.Equal(t, SuspiciousMedium, NormalizeSuspiciousLevel("moyen"))
	assert.Equal(t, SuspiciousLow, NormalizeSuspiciousLevel("whatever"))
}
