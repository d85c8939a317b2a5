package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/textgen"
)

// TextGenerator drafts messages and analyses. Message and suggestion
// generation always produce a result, falling back to templates.
type TextGenerator interface {
	GenerateJustificationMessage(ctx context.Context, mc textgen.MessageContext) textgen.Message
	AnalyzeDescription(ctx context.Context, text string, amount decimal.Decimal) (entity.AIMeta, error)
	GenerateSuggestions(ctx context.Context, entries []entity.LedgerEntry) textgen.Suggestions
	Status(ctx context.Context) []textgen.ProviderStatus
}

var _ TextGenerator = (*textgen.Chain)(nil)
