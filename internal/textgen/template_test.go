package textgen

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
)

func TestTemplateProvider_MessageByType(t *testing.T) {
	p := NewTemplateProvider("")
	mc := sampleContext()

	mc.Type = entity.RequestTypePayment
	payment := p.Message(mc)
	assert.Contains(t, payment, "un paiement de 500,00")
	assert.Contains(t, payment, "justificatif")

	mc.Type = entity.RequestTypeInvoice
	mc.Reference = "FAC-9"
	invoice := p.Message(mc)
	assert.Contains(t, invoice, "une facture")
	assert.Contains(t, invoice, "Référence : FAC-9")
}

func TestTemplateProvider_Analyze(t *testing.T) {
	p := NewTemplateProvider("")

	clean := p.Analyze("Facture de maintenance annuelle", decimal.RequireFromString("1234.56"))
	assert.Equal(t, entity.SuspiciousLow, clean.SuspiciousLevel)
	assert.Empty(t, clean.Reasons)
	assert.NotNil(t, clean.Suggestions)

	vague := p.Analyze("Régul. diverse de fin d'année", decimal.RequireFromString("57.10"))
	assert.Equal(t, entity.SuspiciousMedium, vague.SuspiciousLevel)

	high := p.Analyze("Cash", decimal.NewFromInt(20000))
	assert.Equal(t, entity.SuspiciousHigh, high.SuspiciousLevel)
}

func TestTemplateProvider_Suggest(t *testing.T) {
	p := NewTemplateProvider("€")
	entries := []entity.LedgerEntry{
		{Balance: decimal.NewFromInt(500)},
		{Balance: decimal.NewFromInt(-120), Reference: "FAC2024-01"},
	}

	got := p.Suggest(entries)
	assert.Contains(t, got, "Demander les pièces justificatives de 1 écritures sans référence.")
	assert.Contains(t, got, "Compléter la date de 2 écritures.")
	assert.Contains(t, got, "Relancer les tiers pour un solde cumulé de 380,00 €.")
}
