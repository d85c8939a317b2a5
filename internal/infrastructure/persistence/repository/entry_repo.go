package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/application/port"
	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/persistence/sqlite"
)

const dateLayout = "2006-01-02"

const entryColumns = `
	id, client_id, variant, entry_date, account_number, counterparty_name,
	description, debit, credit, balance, reference, signature,
	justified, justified_at, ai_meta, import_index, created_at`

// EntryRepository implements port.EntryRepository
type EntryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewEntryRepository creates a new ledger entry repository
func NewEntryRepository(db *sqlite.DB, logger *zap.Logger) port.EntryRepository {
	return &EntryRepository{
		db:     db,
		logger: logger,
	}
}

// List retrieves the entries of one ledger in insertion order
func (r *EntryRepository) List(ctx context.Context, clientID string, variant entity.Variant) ([]entity.ClassifiedEntry, error) {
	query := `SELECT` + entryColumns + `
		FROM ledger_entries
		WHERE client_id = ? AND variant = ?
		ORDER BY rowid`

	rows, err := sqlite.Executor(ctx, r.db.DB).QueryContext(ctx, query, clientID, string(variant))
	if err != nil {
		r.logger.Error("Failed to list entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []entity.ClassifiedEntry
	for rows.Next() {
		ce, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ce)
	}
	return entries, rows.Err()
}

// Save inserts entries in one transaction. An entry whose signature already
// exists in its ledger is skipped, which also covers concurrent imports.
// Any other constraint violation fails the call and rolls the batch back.
func (r *EntryRepository) Save(ctx context.Context, entries []entity.ClassifiedEntry) (port.SaveResult, error) {
	query := `
		INSERT INTO ledger_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id, variant, signature) DO NOTHING`

	var result port.SaveResult
	err := r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := sqlite.Executor(txCtx, r.db.DB)
		for _, ce := range entries {
			e := ce.Entry()
			meta, err := encodeMeta(ce)
			if err != nil {
				return err
			}
			createdAt := e.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}

			res, err := exec.ExecContext(txCtx, query,
				e.ID,
				e.ClientID,
				string(e.Variant),
				nullString(e.DateString()),
				e.AccountNumber,
				e.CounterpartyName,
				e.Description,
				e.Debit.String(),
				e.Credit.String(),
				e.Balance.String(),
				e.Reference,
				e.Signature,
				e.Justified,
				nullTime(e.JustifiedAt),
				meta,
				e.ImportIndex,
				createdAt,
			)
			if err != nil {
				r.logger.Error("Failed to insert entry", zap.String("entry_id", e.ID), zap.Error(err))
				return fmt.Errorf("failed to insert entry: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if n == 0 {
				result.Skipped++
				continue
			}
			result.Inserted++
		}
		return nil
	})
	if err != nil {
		return port.SaveResult{}, err
	}
	return result, nil
}

// Clear deletes one ledger. Requests on its entries go with it.
func (r *EntryRepository) Clear(ctx context.Context, clientID string, variant entity.Variant) (int, error) {
	res, err := sqlite.Executor(ctx, r.db.DB).ExecContext(ctx,
		`DELETE FROM ledger_entries WHERE client_id = ? AND variant = ?`,
		clientID, string(variant),
	)
	if err != nil {
		r.logger.Error("Failed to clear entries", zap.Error(err))
		return 0, fmt.Errorf("failed to clear entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// GetByID retrieves an entry of a ledger
func (r *EntryRepository) GetByID(ctx context.Context, clientID string, variant entity.Variant, id string) (entity.ClassifiedEntry, error) {
	query := `SELECT` + entryColumns + `
		FROM ledger_entries
		WHERE id = ? AND client_id = ? AND variant = ?`

	ce, err := scanEntry(sqlite.Executor(ctx, r.db.DB).QueryRowContext(ctx, query, id, clientID, string(variant)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrEntryNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get entry", zap.String("entry_id", id), zap.Error(err))
		return nil, err
	}
	return ce, nil
}

// UpdateReference sets the reference and marks the entry justified
func (r *EntryRepository) UpdateReference(ctx context.Context, clientID string, variant entity.Variant, id, reference string, justifiedAt time.Time) error {
	res, err := sqlite.Executor(ctx, r.db.DB).ExecContext(ctx, `
		UPDATE ledger_entries
		SET reference = ?, justified = 1, justified_at = ?
		WHERE id = ? AND client_id = ? AND variant = ?`,
		reference, justifiedAt, id, clientID, string(variant),
	)
	if err != nil {
		r.logger.Error("Failed to update reference", zap.String("entry_id", id), zap.Error(err))
		return fmt.Errorf("failed to update reference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return entity.ErrEntryNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (entity.ClassifiedEntry, error) {
	var (
		e                      entity.LedgerEntry
		variant                string
		date, meta             sql.NullString
		debit, credit, balance string
		justifiedAt            sql.NullTime
	)
	err := s.Scan(
		&e.ID,
		&e.ClientID,
		&variant,
		&date,
		&e.AccountNumber,
		&e.CounterpartyName,
		&e.Description,
		&debit,
		&credit,
		&balance,
		&e.Reference,
		&e.Signature,
		&e.Justified,
		&justifiedAt,
		&meta,
		&e.ImportIndex,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.Variant = entity.Variant(variant)
	if date.Valid && date.String != "" {
		d, err := time.Parse(dateLayout, date.String)
		if err != nil {
			return nil, fmt.Errorf("invalid entry date %q: %w", date.String, err)
		}
		e.Date = &d
	}
	if justifiedAt.Valid {
		t := justifiedAt.Time
		e.JustifiedAt = &t
	}
	if e.Debit, err = decimal.NewFromString(debit); err != nil {
		return nil, fmt.Errorf("invalid debit %q: %w", debit, err)
	}
	if e.Credit, err = decimal.NewFromString(credit); err != nil {
		return nil, fmt.Errorf("invalid credit %q: %w", credit, err)
	}
	if e.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("invalid balance %q: %w", balance, err)
	}

	if meta.Valid && meta.String != "" {
		var m entity.AIMeta
		if err := json.Unmarshal([]byte(meta.String), &m); err != nil {
			return nil, fmt.Errorf("invalid ai_meta: %w", err)
		}
		return entity.Analyzed(e, m), nil
	}
	return entity.Plain(e), nil
}

func encodeMeta(ce entity.ClassifiedEntry) (sql.NullString, error) {
	meta, ok := entity.Analysis(ce)
	if !ok {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode ai_meta: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Verify interface compliance
var _ port.EntryRepository = (*EntryRepository)(nil)
