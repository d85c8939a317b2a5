package textgen

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/ingest"
)

var (
	hundred      = decimal.NewFromInt(100)
	largeAmount  = decimal.NewFromInt(10_000)
	vagueWording = []string{"divers", "regul", "espece", "cash", "avance", "ajustement", "a justifier", "inconnu"}
)

// TemplateProvider fills fixed French templates. It is always available
// and never fails, which makes it the terminal fallback of a Chain.
type TemplateProvider struct {
	currency string
}

// NewTemplateProvider creates the fallback provider. Amounts are followed
// by currency when it is not empty.
func NewTemplateProvider(currency string) *TemplateProvider {
	return &TemplateProvider{currency: currency}
}

func (t *TemplateProvider) Name() string { return ProviderTemplate }

func (t *TemplateProvider) IsAvailable(context.Context) bool { return true }

func (t *TemplateProvider) GenerateJustificationMessage(_ context.Context, mc MessageContext) (string, error) {
	return t.Message(mc), nil
}

// Message renders the request letter for mc.
func (t *TemplateProvider) Message(mc MessageContext) string {
	var b strings.Builder

	name := mc.CounterpartyName
	if name == "" {
		name = "Madame, Monsieur"
	}
	fmt.Fprintf(&b, "Bonjour %s,\n\n", name)

	subject := "une opération"
	if mc.Type == entity.RequestTypeInvoice {
		subject = "une facture"
	} else if mc.Type == entity.RequestTypePayment {
		subject = "un paiement"
	}
	fmt.Fprintf(&b, "Lors de la revue de vos comptes, nous avons relevé %s de %s", subject, t.amount(mc.Amount))
	if mc.Date != nil {
		fmt.Fprintf(&b, " en date du %s", mc.Date.Format("02/01/2006"))
	}
	if mc.Description != "" {
		fmt.Fprintf(&b, " (%s)", mc.Description)
	}
	b.WriteString(".\n\n")

	if mc.Type == entity.RequestTypeInvoice {
		b.WriteString("Pourriez-vous nous confirmer son règlement ou nous transmettre la facture correspondante ?\n")
	} else {
		b.WriteString("Pourriez-vous nous transmettre le justificatif de ce paiement (facture, reçu ou avis de virement) ?\n")
	}
	if mc.Reference != "" {
		fmt.Fprintf(&b, "Référence : %s\n", mc.Reference)
	}
	b.WriteString("\nNous vous remercions par avance.\n\nCordialement,")
	return b.String()
}

func (t *TemplateProvider) amount(d decimal.Decimal) string {
	s := ingest.FormatAmount(d, ingest.NotationFrench)
	if t.currency != "" {
		s += " " + t.currency
	}
	return s
}

func (t *TemplateProvider) AnalyzeDescription(_ context.Context, text string, amount decimal.Decimal) (entity.AIMeta, error) {
	return t.Analyze(text, amount), nil
}

// Analyze applies fixed heuristics to a description and amount.
func (t *TemplateProvider) Analyze(text string, amount decimal.Decimal) entity.AIMeta {
	var reasons, suggestions []string
	normalized := ingest.NormalizeHeader(text)

	if !amount.IsZero() && amount.Mod(hundred).IsZero() {
		reasons = append(reasons, "montant rond")
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < 10 {
		reasons = append(reasons, "libellé trop court")
		suggestions = append(suggestions, "Compléter le libellé avec la nature de l'opération")
	}
	for _, w := range vagueWording {
		if strings.Contains(normalized, w) {
			reasons = append(reasons, fmt.Sprintf("libellé imprécis (%s)", w))
			suggestions = append(suggestions, "Rattacher l'écriture à une pièce justificative")
			break
		}
	}
	if amount.Abs().GreaterThanOrEqual(largeAmount) {
		reasons = append(reasons, "montant élevé")
		suggestions = append(suggestions, "Vérifier l'autorisation de la dépense")
	}

	level := entity.SuspiciousLow
	switch {
	case len(reasons) >= 2:
		level = entity.SuspiciousHigh
	case len(reasons) == 1:
		level = entity.SuspiciousMedium
	}
	return entity.AIMeta{
		SuspiciousLevel: level,
		Reasons:         nonNil(reasons),
		Suggestions:     nonNil(suggestions),
		Provider:        ProviderTemplate,
	}
}

func (t *TemplateProvider) GenerateSuggestions(_ context.Context, entries []entity.LedgerEntry) ([]string, error) {
	return t.Suggest(entries), nil
}

// Suggest summarises what a ledger needs in a few actionable lines.
func (t *TemplateProvider) Suggest(entries []entity.LedgerEntry) []string {
	if len(entries) == 0 {
		return []string{"Aucune écriture à traiter."}
	}

	var noReference, noDate int
	outstanding := decimal.Zero
	for _, e := range entries {
		if strings.TrimSpace(e.Reference) == "" {
			noReference++
		}
		if e.Date == nil {
			noDate++
		}
		outstanding = outstanding.Add(e.Balance)
	}

	out := make([]string, 0, 3)
	if noReference > 0 {
		out = append(out, fmt.Sprintf("Demander les pièces justificatives de %d écritures sans référence.", noReference))
	}
	if noDate > 0 {
		out = append(out, fmt.Sprintf("Compléter la date de %d écritures.", noDate))
	}
	if !outstanding.IsZero() {
		out = append(out, fmt.Sprintf("Relancer les tiers pour un solde cumulé de %s.", t.amount(outstanding.Abs())))
	}
	if len(out) == 0 {
		out = append(out, "Les écritures signalées sont documentées ; vérifier les montants ronds.")
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ Provider = (*TemplateProvider)(nil)
