package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/garyjia/ledger-backoffice/internal/application/port"
	"github.com/garyjia/ledger-backoffice/internal/cache"
	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
)

// ErrLedgerUnavailable is returned when storage fails and no snapshot is cached
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// Snapshot is the cacheable form of one ledger.
type Snapshot struct {
	Entries  []entity.LedgerEntry     `json:"entries"`
	Analyses map[string]entity.AIMeta `json:"analyses,omitempty"`
	LoadedAt time.Time                `json:"loaded_at"`
}

// NewSnapshot captures entries, keeping their analyses by entry ID.
func NewSnapshot(entries []entity.ClassifiedEntry, at time.Time) Snapshot {
	s := Snapshot{Entries: entity.Entries(entries), LoadedAt: at}
	for _, ce := range entries {
		if meta, ok := entity.Analysis(ce); ok {
			if s.Analyses == nil {
				s.Analyses = make(map[string]entity.AIMeta)
			}
			s.Analyses[ce.Entry().ID] = meta
		}
	}
	return s
}

// Classified rebuilds the entries with their analyses.
func (s Snapshot) Classified() []entity.ClassifiedEntry {
	out := make([]entity.ClassifiedEntry, len(s.Entries))
	for i, e := range s.Entries {
		if meta, ok := s.Analyses[e.ID]; ok {
			out[i] = entity.Analyzed(e, meta)
			continue
		}
		out[i] = entity.Plain(e)
	}
	return out
}

// Ledger is a loaded ledger. Degraded is set when it comes from the
// last-known snapshot because storage failed.
type Ledger struct {
	Entries  []entity.ClassifiedEntry
	Degraded bool
	LoadedAt time.Time
}

// LedgerReader loads ledgers through two caches: a short-lived fresh copy
// and a longer-lived last-known snapshot served when storage fails.
// Concurrent loads of the same ledger share one storage read.
type LedgerReader struct {
	repo      port.EntryRepository
	fresh     cache.Store[Snapshot]
	lastKnown cache.Store[Snapshot]
	notifier  port.Notifier
	logger    Logger
	group     singleflight.Group
	now       func() time.Time
}

// NewLedgerReader creates a reader. lastKnown may be nil to disable fallback.
func NewLedgerReader(repo port.EntryRepository, fresh, lastKnown cache.Store[Snapshot], notifier port.Notifier, logger Logger) *LedgerReader {
	return &LedgerReader{
		repo:      repo,
		fresh:     fresh,
		lastKnown: lastKnown,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

func ledgerKey(clientID string, variant entity.Variant) string {
	return fmt.Sprintf("ledger:%s:%s", clientID, variant)
}

// Load returns the ledger of clientID and variant.
func (r *LedgerReader) Load(ctx context.Context, clientID string, variant entity.Variant) (*Ledger, error) {
	key := ledgerKey(clientID, variant)
	if snap, ok := r.fresh.Get(ctx, key); ok {
		return &Ledger{Entries: snap.Classified(), LoadedAt: snap.LoadedAt}, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		entries, err := r.repo.List(ctx, clientID, variant)
		if err != nil {
			return nil, err
		}
		snap := NewSnapshot(entries, r.now())
		if err := r.fresh.Set(ctx, key, snap, 0); err != nil {
			r.logger.Warn("Failed to cache ledger", "key", key, "error", err)
		}
		if r.lastKnown != nil {
			if err := r.lastKnown.Set(ctx, key, snap, 0); err != nil {
				r.logger.Warn("Failed to store ledger snapshot", "key", key, "error", err)
			}
		}
		return snap, nil
	})
	if err == nil {
		snap := v.(Snapshot)
		return &Ledger{Entries: snap.Classified(), LoadedAt: snap.LoadedAt}, nil
	}

	r.logger.Error("Failed to load ledger", "client_id", clientID, "variant", variant, "error", err)
	if r.lastKnown != nil {
		if snap, ok := r.lastKnown.Get(ctx, key); ok {
			r.notifier.Notify(ctx, port.Notification{
				Type:     port.NotificationLedgerDegraded,
				Level:    port.LevelWarning,
				Title:    "Données hors ligne",
				Message:  fmt.Sprintf("Stockage indisponible, affichage des données du %s", snap.LoadedAt.Format("02/01/2006 15:04")),
				Duration: 10 * time.Second,
				ClientID: clientID,
			})
			return &Ledger{Entries: snap.Classified(), Degraded: true, LoadedAt: snap.LoadedAt}, nil
		}
	}
	r.notifier.Notify(ctx, port.Notification{
		Type:     port.NotificationLedgerDegraded,
		Level:    port.LevelError,
		Title:    "Stockage indisponible",
		Message:  "Les écritures n'ont pas pu être chargées",
		ClientID: clientID,
	})
	return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
}

// Invalidate drops the fresh copy so the next Load reads storage.
func (r *LedgerReader) Invalidate(ctx context.Context, clientID string, variant entity.Variant) {
	if err := r.fresh.Delete(ctx, ledgerKey(clientID, variant)); err != nil {
		r.logger.Warn("Failed to invalidate ledger cache", "client_id", clientID, "error", err)
	}
}

// Forget drops both copies of a ledger.
func (r *LedgerReader) Forget(ctx context.Context, clientID string, variant entity.Variant) {
	r.Invalidate(ctx, clientID, variant)
	if r.lastKnown == nil {
		return
	}
	if err := r.lastKnown.Delete(ctx, ledgerKey(clientID, variant)); err != nil {
		r.logger.Warn("Failed to drop ledger snapshot", "client_id", clientID, "error", err)
	}
}
