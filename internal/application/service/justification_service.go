package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/ledger-backoffice/internal/application/port"
	"github.com/garyjia/ledger-backoffice/internal/classify"
	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/domain/workflow"
	"github.com/garyjia/ledger-backoffice/internal/ingest"
	"github.com/garyjia/ledger-backoffice/internal/textgen"
)

// JustificationService drives requests for missing supporting documents
type JustificationService interface {
	RequestJustification(ctx context.Context, clientID string, variant entity.Variant, entryID, requestType string) (*entity.JustificationRequest, error)
	UpdateRequestStatus(ctx context.Context, id, status string) (*entity.JustificationRequest, error)
	ReceiveJustification(ctx context.Context, id, reference string) (*entity.JustificationRequest, error)
	RemoveRequest(ctx context.Context, id string) error
	ListRequests(ctx context.Context, clientID string) ([]*entity.JustificationRequest, error)
	GetRequest(ctx context.Context, id string) (*entity.JustificationRequest, error)
}

type justificationServiceImpl struct {
	entryRepo   port.EntryRepository
	requestRepo port.RequestRepository
	reader      *LedgerReader
	generator   port.TextGenerator
	txManager   port.TransactionManager
	notifier    port.Notifier
	logger      Logger
	now         func() time.Time
	newID       func() string
}

// NewJustificationService creates a new JustificationService
func NewJustificationService(
	entryRepo port.EntryRepository,
	requestRepo port.RequestRepository,
	reader *LedgerReader,
	generator port.TextGenerator,
	txManager port.TransactionManager,
	notifier port.Notifier,
	logger Logger,
) JustificationService {
	return &justificationServiceImpl{
		entryRepo:   entryRepo,
		requestRepo: requestRepo,
		reader:      reader,
		generator:   generator,
		txManager:   txManager,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// RequestJustification creates a pending request for an existing entry with
// a drafted message. An empty requestType is derived from the entry: a
// missing justification asks for the invoice, anything else for the payment.
// Drafting never fails the request; the template backend is the last resort.
func (s *justificationServiceImpl) RequestJustification(ctx context.Context, clientID string, variant entity.Variant, entryID, requestType string) (*entity.JustificationRequest, error) {
	if err := validateScope(clientID, variant); err != nil {
		return nil, err
	}
	ce, err := s.entryRepo.GetByID(ctx, clientID, variant, entryID)
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	entry := ce.Entry()

	if requestType == "" {
		requestType = entity.RequestTypePayment
		if classify.Classify(entry, variant).Has(classify.BucketMissingJustification) {
			requestType = entity.RequestTypeInvoice
		}
	}
	if !entity.IsValidRequestType(requestType) {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidRequestType, requestType)
	}

	msg := s.generator.GenerateJustificationMessage(ctx, textgen.MessageContextFor(entry, requestType))

	now := s.now()
	req := &entity.JustificationRequest{
		ID:                 s.newID(),
		EntryID:            entry.ID,
		ClientID:           clientID,
		Variant:            variant,
		Type:               requestType,
		Status:             entity.RequestStatusPending,
		Message:            msg.Text,
		IsGeneratedByModel: msg.IsGeneratedByModel,
		Provider:           msg.Provider,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.requestRepo.Create(ctx, req); err != nil {
		s.logger.Error("Failed to create justification request", "entry_id", entryID, "error", err)
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.logger.Info("Justification request created",
		"request_id", req.ID,
		"entry_id", entryID,
		"type", requestType,
		"provider", msg.Provider,
	)
	s.notifier.Notify(ctx, port.Notification{
		Type:     port.NotificationRequestCreated,
		Level:    port.LevelInfo,
		Title:    "Demande de justificatif créée",
		Message:  fmt.Sprintf("Demande pour %s", entry.CounterpartyName),
		Duration: 5 * time.Second,
		ClientID: clientID,
	})
	return req, nil
}

// UpdateRequestStatus moves a request forward. Setting the current status
// again returns the request unchanged.
func (s *justificationServiceImpl) UpdateRequestStatus(ctx context.Context, id, status string) (*entity.JustificationRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	next, changed, err := s.advance(ctx, req, status, nil)
	if err != nil || !changed {
		return req, err
	}

	if err := s.requestRepo.UpdateStatus(ctx, id, req.Status, string(next), s.now()); err != nil {
		return nil, fmt.Errorf("update request status: %w", err)
	}
	return s.finishTransition(ctx, req, next)
}

// ReceiveJustification marks a request received and records the document
// reference on its entry, in one transaction.
func (s *justificationServiceImpl) ReceiveJustification(ctx context.Context, id, reference string) (*entity.JustificationRequest, error) {
	reference = ingest.SanitizeString(reference)
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	next, changed, err := s.advance(ctx, req, entity.RequestStatusReceived, workflow.Guards{
		workflow.TriggerReceive: func(context.Context) bool { return reference != "" },
	})
	if errors.Is(err, workflow.ErrGuardFailed) {
		return nil, errors.Join(entity.ErrEmptyReference, err)
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if changed {
			if err := s.requestRepo.UpdateStatus(txCtx, id, req.Status, string(next), now); err != nil {
				return fmt.Errorf("update request status: %w", err)
			}
		}
		if err := s.entryRepo.UpdateReference(txCtx, req.ClientID, req.Variant, req.EntryID, reference, now); err != nil {
			return fmt.Errorf("update reference: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to receive justification", "request_id", id, "error", err)
		return nil, err
	}
	s.reader.Invalidate(ctx, req.ClientID, req.Variant)

	if !changed {
		return req, nil
	}
	return s.finishTransition(ctx, req, next)
}

func (s *justificationServiceImpl) advance(ctx context.Context, req *entity.JustificationRequest, status string, guards workflow.Guards) (workflow.State, bool, error) {
	current := workflow.State(req.Status)
	next, err := workflow.Advance(ctx, current, workflow.State(status), guards)
	if err != nil {
		return current, false, err
	}
	return next, next != current, nil
}

func (s *justificationServiceImpl) finishTransition(ctx context.Context, req *entity.JustificationRequest, next workflow.State) (*entity.JustificationRequest, error) {
	updated, err := s.requestRepo.GetByID(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}

	s.logger.Info("Justification request updated", "request_id", req.ID, "from", req.Status, "to", next)

	n := port.Notification{
		Type:     port.NotificationRequestSent,
		Level:    port.LevelInfo,
		Title:    "Demande envoyée",
		Message:  "La demande de justificatif a été envoyée",
		Duration: 5 * time.Second,
		ClientID: req.ClientID,
	}
	if next == workflow.StateReceived {
		n.Type = port.NotificationRequestReceived
		n.Title = "Justificatif reçu"
		n.Message = "Le justificatif a été reçu"
	}
	s.notifier.Notify(ctx, n)
	return updated, nil
}

// RemoveRequest deletes a request permanently
func (s *justificationServiceImpl) RemoveRequest(ctx context.Context, id string) error {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get request: %w", err)
	}
	if err := s.requestRepo.Delete(ctx, id); err != nil {
		if !errors.Is(err, entity.ErrRequestNotFound) {
			s.logger.Error("Failed to delete request", "request_id", id, "error", err)
		}
		return fmt.Errorf("delete request: %w", err)
	}

	s.logger.Info("Justification request removed", "request_id", id)
	s.notifier.Notify(ctx, port.Notification{
		Type:     port.NotificationRequestRemoved,
		Level:    port.LevelInfo,
		Title:    "Demande supprimée",
		Message:  "La demande de justificatif a été supprimée",
		Duration: 3 * time.Second,
		ClientID: req.ClientID,
	})
	return nil
}

func (s *justificationServiceImpl) ListRequests(ctx context.Context, clientID string) ([]*entity.JustificationRequest, error) {
	if clientID == "" {
		return nil, entity.ErrMissingClientID
	}
	reqs, err := s.requestRepo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

func (s *justificationServiceImpl) GetRequest(ctx context.Context, id string) (*entity.JustificationRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}
