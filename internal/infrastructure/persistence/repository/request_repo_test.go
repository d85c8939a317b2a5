package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
)

func testRequest(id, entryID string) *entity.JustificationRequest {
	now := time.Now().UTC()
	return &entity.JustificationRequest{
		ID:        id,
		EntryID:   entryID,
		ClientID:  "c1",
		Variant:   entity.VariantSupplier,
		Type:      entity.RequestTypeInvoice,
		Status:    entity.RequestStatusPending,
		Message:   "Merci de nous transmettre la facture.",
		Provider:  "template",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func setupRequests(t *testing.T) *RequestRepository {
	t.Helper()
	db := newTestDB(t)
	_, err := NewEntryRepository(db, zap.NewNop()).Save(context.Background(), []entity.ClassifiedEntry{
		entity.Plain(testEntry("e1", "sig-1", "10")),
		entity.Plain(testEntry("e2", "sig-2", "20")),
	})
	require.NoError(t, err)
	return NewRequestRepository(db, zap.NewNop()).(*RequestRepository)
}

func TestRequestRepository_CreateAndGet(t *testing.T) {
	repo := setupRequests(t)
	ctx := context.Background()

	req := testRequest("r1", "e1")
	req.IsGeneratedByModel = true
	require.NoError(t, repo.Create(ctx, req))

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "e1", got.EntryID)
	assert.Equal(t, entity.VariantSupplier, got.Variant)
	assert.Equal(t, entity.RequestStatusPending, got.Status)
	assert.True(t, got.IsGeneratedByModel)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, entity.ErrRequestNotFound)
}

func TestRequestRepository_CreateRequiresEntry(t *testing.T) {
	repo := setupRequests(t)

	err := repo.Create(context.Background(), testRequest("r1", "nope"))
	assert.Error(t, err)
}

func TestRequestRepository_Lists(t *testing.T) {
	repo := setupRequests(t)
	ctx := context.Background()

	older := testRequest("r1", "e1")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, testRequest("r2", "e2")))
	require.NoError(t, repo.Create(ctx, testRequest("r3", "e1")))

	byClient, err := repo.ListByClient(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, byClient, 3)
	assert.Equal(t, "r1", byClient[2].ID)

	byEntry, err := repo.ListByEntry(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, byEntry, 2)
	assert.Equal(t, "r1", byEntry[0].ID)
	assert.Equal(t, "r3", byEntry[1].ID)

	none, err := repo.ListByClient(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRequestRepository_UpdateStatus(t *testing.T) {
	repo := setupRequests(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testRequest("r1", "e1")))

	later := time.Now().UTC().Add(time.Minute)
	require.NoError(t, repo.UpdateStatus(ctx, "r1", entity.RequestStatusPending, entity.RequestStatusSent, later))

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusSent, got.Status)
	assert.True(t, later.Equal(got.UpdatedAt))

	err = repo.UpdateStatus(ctx, "r1", entity.RequestStatusPending, entity.RequestStatusReceived, later)
	assert.ErrorIs(t, err, entity.ErrStaleRequest)

	err = repo.UpdateStatus(ctx, "missing", entity.RequestStatusPending, entity.RequestStatusSent, later)
	assert.ErrorIs(t, err, entity.ErrRequestNotFound)
}

func TestRequestRepository_Delete(t *testing.T) {
	repo := setupRequests(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testRequest("r1", "e1")))

	require.NoError(t, repo.Delete(ctx, "r1"))
	assert.ErrorIs(t, repo.Delete(ctx, "r1"), entity.ErrRequestNotFound)
}
