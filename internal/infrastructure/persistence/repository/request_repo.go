package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/application/port"
	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/persistence/sqlite"
)

const requestColumns = `
	id, entry_id, client_id, variant, type, status, message,
	is_generated_by_model, provider, created_at, updated_at`

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new justification request repository
func NewRequestRepository(db *sqlite.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new justification request
func (r *RequestRepository) Create(ctx context.Context, req *entity.JustificationRequest) error {
	query := `
		INSERT INTO justification_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := sqlite.Executor(ctx, r.db.DB).ExecContext(ctx, query,
		req.ID,
		req.EntryID,
		req.ClientID,
		string(req.Variant),
		req.Type,
		req.Status,
		req.Message,
		req.IsGeneratedByModel,
		req.Provider,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("request_id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}

	r.logger.Info("Justification request created",
		zap.String("request_id", req.ID),
		zap.String("entry_id", req.EntryID))
	return nil
}

// GetByID retrieves a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.JustificationRequest, error) {
	query := `SELECT` + requestColumns + ` FROM justification_requests WHERE id = ?`

	req, err := scanRequest(sqlite.Executor(ctx, r.db.DB).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrRequestNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("request_id", id), zap.Error(err))
		return nil, err
	}
	return req, nil
}

// ListByClient retrieves the requests of a client, newest first
func (r *RequestRepository) ListByClient(ctx context.Context, clientID string) ([]*entity.JustificationRequest, error) {
	query := `SELECT` + requestColumns + `
		FROM justification_requests
		WHERE client_id = ?
		ORDER BY created_at DESC, rowid DESC`
	return r.list(ctx, query, clientID)
}

// ListByEntry retrieves the requests attached to an entry
func (r *RequestRepository) ListByEntry(ctx context.Context, entryID string) ([]*entity.JustificationRequest, error) {
	query := `SELECT` + requestColumns + `
		FROM justification_requests
		WHERE entry_id = ?
		ORDER BY created_at, rowid`
	return r.list(ctx, query, entryID)
}

func (r *RequestRepository) list(ctx context.Context, query string, arg string) ([]*entity.JustificationRequest, error) {
	rows, err := sqlite.Executor(ctx, r.db.DB).QueryContext(ctx, query, arg)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.JustificationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// UpdateStatus is a compare-and-set on the status column
func (r *RequestRepository) UpdateStatus(ctx context.Context, id, from, to string, updatedAt time.Time) error {
	exec := sqlite.Executor(ctx, r.db.DB)
	res, err := exec.ExecContext(ctx, `
		UPDATE justification_requests
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, updatedAt, id, from,
	)
	if err != nil {
		r.logger.Error("Failed to update request status", zap.String("request_id", id), zap.Error(err))
		return fmt.Errorf("failed to update request status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = exec.QueryRowContext(ctx, `SELECT COUNT(1) FROM justification_requests WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check request: %w", err)
	}
	if exists == 0 {
		return entity.ErrRequestNotFound
	}
	return entity.ErrStaleRequest
}

// Delete removes a request
func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	res, err := sqlite.Executor(ctx, r.db.DB).ExecContext(ctx, `DELETE FROM justification_requests WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete request", zap.String("request_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return entity.ErrRequestNotFound
	}
	return nil
}

func scanRequest(s scanner) (*entity.JustificationRequest, error) {
	var (
		req     entity.JustificationRequest
		variant string
	)
	err := s.Scan(
		&req.ID,
		&req.EntryID,
		&req.ClientID,
		&variant,
		&req.Type,
		&req.Status,
		&req.Message,
		&req.IsGeneratedByModel,
		&req.Provider,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}
	req.Variant = entity.Variant(variant)
	return &req, nil
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
