package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/garyjia/ledger-backoffice/internal/application/port"
	"github.com/garyjia/ledger-backoffice/internal/classify"
	"github.com/garyjia/ledger-backoffice/internal/dedup"
	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/ingest"
)

// ImportRequest is one batch of spreadsheet rows for a ledger
type ImportRequest struct {
	ClientID string
	Variant  entity.Variant
	Rows     []ingest.Row
}

// ImportReport describes the outcome of an import. Running the same
// import twice adds nothing the second time.
type ImportReport struct {
	ClientID          string           `json:"client_id"`
	Variant           entity.Variant   `json:"variant"`
	Rows              int              `json:"rows"`
	Added             int              `json:"added"`
	DuplicatesSkipped int              `json:"duplicates_skipped"`
	SkippedMissingKey int              `json:"skipped_missing_key"`
	SkippedTotals     int              `json:"skipped_totals"`
	HeaderRows        int              `json:"header_rows"`
	Warnings          []string         `json:"warnings"`
	Degraded          bool             `json:"degraded"`
	Summary           classify.Summary `json:"summary"`
}

// ImportRecorder mirrors import outcomes into metrics
type ImportRecorder interface {
	ObserveImport(variant, outcome string, added, duplicates, skipped int)
}

// ImportService ingests spreadsheets into ledgers
type ImportService interface {
	HandleImport(ctx context.Context, req ImportRequest) (*ImportReport, error)
	ImportFile(ctx context.Context, clientID string, variant entity.Variant, filename string, r io.Reader, sheet string) (*ImportReport, error)
	ClearLedger(ctx context.Context, clientID string, variant entity.Variant) (int, error)
}

type importServiceImpl struct {
	entryRepo port.EntryRepository
	reader    *LedgerReader
	builder   *ingest.Builder
	annotator *classify.Annotator
	notifier  port.Notifier
	recorder  ImportRecorder
	logger    Logger
}

// NewImportService creates a new ImportService. recorder may be nil.
func NewImportService(
	entryRepo port.EntryRepository,
	reader *LedgerReader,
	builder *ingest.Builder,
	annotator *classify.Annotator,
	notifier port.Notifier,
	recorder ImportRecorder,
	logger Logger,
) ImportService {
	return &importServiceImpl{
		entryRepo: entryRepo,
		reader:    reader,
		builder:   builder,
		annotator: annotator,
		notifier:  notifier,
		recorder:  recorder,
		logger:    logger,
	}
}

// HandleImport builds entries from rows, drops the ones already stored,
// annotates flagged entries and saves the rest. Malformed rows are counted,
// never fatal. A storage failure yields a degraded report, not an error.
func (s *importServiceImpl) HandleImport(ctx context.Context, req ImportRequest) (*ImportReport, error) {
	if req.ClientID == "" {
		return nil, entity.ErrMissingClientID
	}
	if !req.Variant.IsValid() {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidVariant, req.Variant)
	}

	s.logger.Info("Importing ledger rows", "client_id", req.ClientID, "variant", req.Variant, "rows", len(req.Rows))

	built := s.builder.Build(req.ClientID, req.Variant, req.Rows)
	dedup.Sign(built.Entries)

	report := &ImportReport{
		ClientID:          req.ClientID,
		Variant:           req.Variant,
		Rows:              built.Rows,
		SkippedMissingKey: built.SkippedMissingKey,
		SkippedTotals:     built.SkippedTotals,
		HeaderRows:        built.HeaderRows,
		Warnings:          []string{},
	}

	existing := dedup.NewSignatureSet()
	ledger, err := s.reader.Load(ctx, req.ClientID, req.Variant)
	switch {
	case err != nil:
		report.Degraded = true
		report.Warnings = append(report.Warnings, "stored entries unavailable, duplicates are filtered by storage only")
	default:
		existing = dedup.SetOf(ledger.Entries)
		if ledger.Degraded {
			report.Degraded = true
			report.Warnings = append(report.Warnings, "duplicates checked against the last known snapshot")
		}
	}

	filtered := dedup.Entries(built.Entries, existing)
	report.DuplicatesSkipped = len(filtered.Duplicates)

	annotated, warnings := s.annotator.Annotate(ctx, req.Variant, filtered.Unique)
	report.Warnings = append(report.Warnings, warnings...)

	if len(annotated) > 0 {
		saved, err := s.entryRepo.Save(ctx, annotated)
		if err != nil {
			s.logger.Error("Failed to save ledger entries", "client_id", req.ClientID, "variant", req.Variant, "error", err)
			report.Degraded = true
			report.Warnings = append(report.Warnings, fmt.Sprintf("entries not saved: %v", err))
			s.notifier.Notify(ctx, port.Notification{
				Type:     port.NotificationImportDegraded,
				Level:    port.LevelError,
				Title:    "Import non enregistré",
				Message:  fmt.Sprintf("%d écritures n'ont pas pu être enregistrées", len(annotated)),
				ClientID: req.ClientID,
			})
			s.observe(req.Variant, "save_failed", report)
			return report, nil
		}
		report.Added = saved.Inserted
		report.DuplicatesSkipped += saved.Skipped
		s.reader.Invalidate(ctx, req.ClientID, req.Variant)
	}

	report.Summary = classify.Summarize(annotated, req.Variant)

	s.notifier.Notify(ctx, port.Notification{
		Type:     port.NotificationImportCompleted,
		Level:    port.LevelInfo,
		Title:    "Import terminé",
		Message:  fmt.Sprintf("%d écritures ajoutées, %d doublons ignorés", report.Added, report.DuplicatesSkipped),
		Duration: 5 * time.Second,
		ClientID: req.ClientID,
	})

	outcome := "ok"
	if report.Degraded {
		outcome = "degraded"
	}
	s.observe(req.Variant, outcome, report)

	s.logger.Info("Ledger import completed",
		"client_id", req.ClientID,
		"variant", req.Variant,
		"added", report.Added,
		"duplicates", report.DuplicatesSkipped,
		"skipped", report.SkippedMissingKey+report.SkippedTotals,
	)
	return report, nil
}

// ImportFile reads a workbook or CSV file and imports its rows.
func (s *importServiceImpl) ImportFile(ctx context.Context, clientID string, variant entity.Variant, filename string, r io.Reader, sheet string) (*ImportReport, error) {
	parsed, err := ingest.ReadFile(filename, r, sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	rows, err := parsed.Rows()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return s.HandleImport(ctx, ImportRequest{ClientID: clientID, Variant: variant, Rows: rows})
}

// ClearLedger deletes every entry of a ledger and its cached copies.
func (s *importServiceImpl) ClearLedger(ctx context.Context, clientID string, variant entity.Variant) (int, error) {
	if clientID == "" {
		return 0, entity.ErrMissingClientID
	}
	if !variant.IsValid() {
		return 0, fmt.Errorf("%w: %q", entity.ErrInvalidVariant, variant)
	}

	removed, err := s.entryRepo.Clear(ctx, clientID, variant)
	if err != nil {
		s.logger.Error("Failed to clear ledger", "client_id", clientID, "variant", variant, "error", err)
		return 0, fmt.Errorf("clear ledger: %w", err)
	}
	s.reader.Forget(ctx, clientID, variant)

	s.notifier.Notify(ctx, port.Notification{
		Type:     port.NotificationLedgerCleared,
		Level:    port.LevelInfo,
		Title:    "Grand livre vidé",
		Message:  fmt.Sprintf("%d écritures supprimées", removed),
		Duration: 5 * time.Second,
		ClientID: clientID,
	})
	s.logger.Info("Ledger cleared", "client_id", clientID, "variant", variant, "removed", removed)
	return removed, nil
}

func (s *importServiceImpl) observe(variant entity.Variant, outcome string, r *ImportReport) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObserveImport(string(variant), outcome, r.Added, r.DuplicatesSkipped, r.SkippedMissingKey+r.SkippedTotals)
}
