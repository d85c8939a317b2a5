package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/ledger-backoffice/internal/application/port"
	"github.com/garyjia/ledger-backoffice/internal/classify"
	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/ingest"
	"github.com/garyjia/ledger-backoffice/internal/textgen"
)

// EntryView is an entry with its classification
type EntryView struct {
	Entry          entity.ClassifiedEntry `json:"entry"`
	Buckets        classify.Buckets       `json:"buckets"`
	Status         classify.Status        `json:"status"`
	HasOpenRequest bool                   `json:"has_open_request"`
}

// EntryList is one ledger, optionally filtered by bucket
type EntryList struct {
	Entries  []EntryView      `json:"entries"`
	Summary  classify.Summary `json:"summary"`
	Degraded bool             `json:"degraded"`
}

// LedgerService reads and annotates ledgers
type LedgerService interface {
	ListEntries(ctx context.Context, clientID string, variant entity.Variant, bucket string) (*EntryList, error)
	ClassifyEntry(ctx context.Context, clientID string, variant entity.Variant, entryID string) (*EntryView, error)
	UpdateReference(ctx context.Context, clientID string, variant entity.Variant, entryID, reference string) (entity.ClassifiedEntry, error)
	Suggestions(ctx context.Context, clientID string, variant entity.Variant) (*textgen.Suggestions, error)
}

type ledgerServiceImpl struct {
	entryRepo   port.EntryRepository
	requestRepo port.RequestRepository
	reader      *LedgerReader
	generator   port.TextGenerator
	logger      Logger
	now         func() time.Time
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(
	entryRepo port.EntryRepository,
	requestRepo port.RequestRepository,
	reader *LedgerReader,
	generator port.TextGenerator,
	logger Logger,
) LedgerService {
	return &ledgerServiceImpl{
		entryRepo:   entryRepo,
		requestRepo: requestRepo,
		reader:      reader,
		generator:   generator,
		logger:      logger,
		now:         time.Now,
	}
}

// ListEntries returns the ledger with per-entry classification. The summary
// always covers the whole ledger, even when bucket filters the entries.
func (s *ledgerServiceImpl) ListEntries(ctx context.Context, clientID string, variant entity.Variant, bucket string) (*EntryList, error) {
	if err := validateScope(clientID, variant); err != nil {
		return nil, err
	}
	var filter classify.Bucket
	if bucket != "" {
		b, err := classify.ParseBucket(bucket)
		if err != nil {
			return nil, err
		}
		filter = b
	}

	ledger, err := s.reader.Load(ctx, clientID, variant)
	if err != nil {
		return nil, err
	}
	open := s.openRequests(ctx, clientID)

	list := &EntryList{
		Entries:  make([]EntryView, 0, len(ledger.Entries)),
		Summary:  classify.Summarize(ledger.Entries, variant),
		Degraded: ledger.Degraded,
	}
	for _, ce := range ledger.Entries {
		buckets := classify.Classify(ce.Entry(), variant)
		if filter != "" && !buckets.Has(filter) {
			continue
		}
		hasOpen := open[ce.Entry().ID]
		list.Entries = append(list.Entries, EntryView{
			Entry:          ce,
			Buckets:        buckets,
			Status:         classify.StatusOf(buckets, hasOpen),
			HasOpenRequest: hasOpen,
		})
	}
	return list, nil
}

// openRequests maps entry IDs to whether they have a pending or sent request.
// A failure only costs the status refinement, so it is logged and ignored.
func (s *ledgerServiceImpl) openRequests(ctx context.Context, clientID string) map[string]bool {
	open := make(map[string]bool)
	reqs, err := s.requestRepo.ListByClient(ctx, clientID)
	if err != nil {
		s.logger.Warn("Failed to list justification requests", "client_id", clientID, "error", err)
		return open
	}
	for _, r := range reqs {
		if r.IsOpen() {
			open[r.EntryID] = true
		}
	}
	return open
}

func (s *ledgerServiceImpl) ClassifyEntry(ctx context.Context, clientID string, variant entity.Variant, entryID string) (*EntryView, error) {
	if err := validateScope(clientID, variant); err != nil {
		return nil, err
	}
	ce, err := s.entryRepo.GetByID(ctx, clientID, variant, entryID)
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}

	hasOpen := false
	reqs, err := s.requestRepo.ListByEntry(ctx, entryID)
	if err != nil {
		s.logger.Warn("Failed to list entry requests", "entry_id", entryID, "error", err)
	}
	for _, r := range reqs {
		if r.IsOpen() {
			hasOpen = true
			break
		}
	}

	buckets := classify.Classify(ce.Entry(), variant)
	return &EntryView{
		Entry:          ce,
		Buckets:        buckets,
		Status:         classify.StatusOf(buckets, hasOpen),
		HasOpenRequest: hasOpen,
	}, nil
}

// UpdateReference records the supporting document reference of an entry
// and marks it justified.
func (s *ledgerServiceImpl) UpdateReference(ctx context.Context, clientID string, variant entity.Variant, entryID, reference string) (entity.ClassifiedEntry, error) {
	if err := validateScope(clientID, variant); err != nil {
		return nil, err
	}
	reference = ingest.SanitizeString(reference)
	if reference == "" {
		return nil, entity.ErrEmptyReference
	}

	if err := s.entryRepo.UpdateReference(ctx, clientID, variant, entryID, reference, s.now()); err != nil {
		if !errors.Is(err, entity.ErrEntryNotFound) {
			s.logger.Error("Failed to update reference", "entry_id", entryID, "error", err)
		}
		return nil, fmt.Errorf("update reference: %w", err)
	}
	s.reader.Invalidate(ctx, clientID, variant)

	s.logger.Info("Entry justified", "client_id", clientID, "entry_id", entryID)
	return s.entryRepo.GetByID(ctx, clientID, variant, entryID)
}

// Suggestions drafts follow-up actions over the flagged entries of a ledger.
func (s *ledgerServiceImpl) Suggestions(ctx context.Context, clientID string, variant entity.Variant) (*textgen.Suggestions, error) {
	if err := validateScope(clientID, variant); err != nil {
		return nil, err
	}
	ledger, err := s.reader.Load(ctx, clientID, variant)
	if err != nil {
		return nil, err
	}

	var flagged []entity.LedgerEntry
	for _, ce := range ledger.Entries {
		if !classify.Classify(ce.Entry(), variant).IsClean() {
			flagged = append(flagged, *ce.Entry())
		}
	}
	result := s.generator.GenerateSuggestions(ctx, flagged)
	return &result, nil
}

func validateScope(clientID string, variant entity.Variant) error {
	if clientID == "" {
		return entity.ErrMissingClientID
	}
	if !variant.IsValid() {
		return fmt.Errorf("%w: %q", entity.ErrInvalidVariant, variant)
	}
	return nil
}
