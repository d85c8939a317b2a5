package classify

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
)

// Analyzer produces a suspicion assessment for an entry description.
type Analyzer interface {
	AnalyzeDescription(ctx context.Context, text string, amount decimal.Decimal) (entity.AIMeta, error)
}

// Annotator enriches flagged entries with description analysis.
type Annotator struct {
	analyzer    Analyzer
	logger      *zap.Logger
	limit       int
	flaggedOnly bool
}

// AnnotatorOption customises an Annotator.
type AnnotatorOption func(*Annotator)

// WithLimit caps the number of analyses per call. Zero means unlimited.
func WithLimit(n int) AnnotatorOption {
	return func(a *Annotator) { a.limit = n }
}

// WithAllEntries analyzes clean entries too.
func WithAllEntries() AnnotatorOption {
	return func(a *Annotator) { a.flaggedOnly = false }
}

// NewAnnotator creates an annotator. A nil analyzer leaves every entry plain.
func NewAnnotator(analyzer Analyzer, logger *zap.Logger, opts ...AnnotatorOption) *Annotator {
	a := &Annotator{analyzer: analyzer, logger: logger, flaggedOnly: true}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Annotate wraps every entry, analyzing the eligible ones. A failed analysis
// leaves the entry plain and adds a warning; it never fails the batch.
func (a *Annotator) Annotate(ctx context.Context, variant entity.Variant, entries []entity.LedgerEntry) ([]entity.ClassifiedEntry, []string) {
	out := make([]entity.ClassifiedEntry, 0, len(entries))
	var (
		warnings []string
		failed   int
		skipped  int
		analyzed int
		firstErr error
	)

	for _, e := range entries {
		if a.analyzer == nil || (a.flaggedOnly && Classify(&e, variant).IsClean()) {
			out = append(out, entity.Plain(e))
			continue
		}
		if (a.limit > 0 && analyzed >= a.limit) || ctx.Err() != nil {
			skipped++
			out = append(out, entity.Plain(e))
			continue
		}

		analyzed++
		meta, err := a.analyzer.AnalyzeDescription(ctx, e.Description, e.Amount())
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			a.logger.Warn("Description analysis failed",
				zap.String("entry_id", e.ID),
				zap.Error(err))
			out = append(out, entity.Plain(e))
			continue
		}
		out = append(out, entity.Analyzed(e, meta))
	}

	if failed > 0 {
		warnings = append(warnings, fmt.Sprintf("analysis failed for %d entries: %v", failed, firstErr))
	}
	if skipped > 0 {
		warnings = append(warnings, fmt.Sprintf("analysis skipped for %d entries", skipped))
	}
	return out, warnings
}
