package port

import (
	"context"
	"time"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
)

// SaveResult reports how many entries were written. Entries whose signature
// is already stored for the same client and variant are skipped.
type SaveResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// EntryRepository defines persistence operations for ledger entries
type EntryRepository interface {
	// List returns the entries of one ledger in import order
	List(ctx context.Context, clientID string, variant entity.Variant) ([]entity.ClassifiedEntry, error)

	Save(ctx context.Context, entries []entity.ClassifiedEntry) (SaveResult, error)

	// Clear removes one ledger and returns the number of deleted entries
	Clear(ctx context.Context, clientID string, variant entity.Variant) (int, error)

	GetByID(ctx context.Context, clientID string, variant entity.Variant, id string) (entity.ClassifiedEntry, error)

	// UpdateReference sets the reference and marks the entry justified
	UpdateReference(ctx context.Context, clientID string, variant entity.Variant, id, reference string, justifiedAt time.Time) error
}

// RequestRepository defines persistence operations for JustificationRequest
type RequestRepository interface {
	Create(ctx context.Context, req *entity.JustificationRequest) error
	GetByID(ctx context.Context, id string) (*entity.JustificationRequest, error)
	ListByClient(ctx context.Context, clientID string) ([]*entity.JustificationRequest, error)
	ListByEntry(ctx context.Context, entryID string) ([]*entity.JustificationRequest, error)

	// UpdateStatus moves a request from one status to another. It fails with
	// entity.ErrStaleRequest when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id, from, to string, updatedAt time.Time) error

	Delete(ctx context.Context, id string) error
}

// TransactionManager runs fn inside a database transaction carried by ctx
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
