package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/ledger-backoffice/internal/application/port"
	"github.com/garyjia/ledger-backoffice/internal/cache"
	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
	"github.com/garyjia/ledger-backoffice/internal/textgen"
	"go.uber.org/zap"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// mockEntryRepo keeps entries in memory and enforces signature uniqueness
// per ledger like the SQL constraint does.
type mockEntryRepo struct {
	mu        sync.Mutex
	entries   []entity.ClassifiedEntry
	listCalls int
	listErr   error
	saveErr   error
	clearErr  error
}

func (m *mockEntryRepo) List(ctx context.Context, clientID string, variant entity.Variant) ([]entity.ClassifiedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []entity.ClassifiedEntry
	for _, ce := range m.entries {
		e := ce.Entry()
		if e.ClientID == clientID && e.Variant == variant {
			out = append(out, ce)
		}
	}
	return out, nil
}

func (m *mockEntryRepo) Save(ctx context.Context, entries []entity.ClassifiedEntry) (port.SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return port.SaveResult{}, m.saveErr
	}
	var res port.SaveResult
	for _, ce := range entries {
		if m.hasSignatureLocked(ce.Entry()) {
			res.Skipped++
			continue
		}
		m.entries = append(m.entries, ce)
		res.Inserted++
	}
	return res, nil
}

func (m *mockEntryRepo) hasSignatureLocked(e *entity.LedgerEntry) bool {
	for _, ce := range m.entries {
		x := ce.Entry()
		if x.ClientID == e.ClientID && x.Variant == e.Variant && x.Signature == e.Signature {
			return true
		}
	}
	return false
}

func (m *mockEntryRepo) Clear(ctx context.Context, clientID string, variant entity.Variant) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearErr != nil {
		return 0, m.clearErr
	}
	kept := m.entries[:0]
	removed := 0
	for _, ce := range m.entries {
		e := ce.Entry()
		if e.ClientID == clientID && e.Variant == variant {
			removed++
			continue
		}
		kept = append(kept, ce)
	}
	m.entries = kept
	return removed, nil
}

func (m *mockEntryRepo) GetByID(ctx context.Context, clientID string, variant entity.Variant, id string) (entity.ClassifiedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ce := range m.entries {
		e := ce.Entry()
		if e.ID == id && e.ClientID == clientID && e.Variant == variant {
			return ce, nil
		}
	}
	return nil, entity.ErrEntryNotFound
}

func (m *mockEntryRepo) UpdateReference(ctx context.Context, clientID string, variant entity.Variant, id, reference string, justifiedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ce := range m.entries {
		e := ce.Entry()
		if e.ID == id && e.ClientID == clientID && e.Variant == variant {
			e.Reference = reference
			e.Justified = true
			at := justifiedAt
			e.JustifiedAt = &at
			return nil
		}
	}
	return entity.ErrEntryNotFound
}

type mockRequestRepo struct {
	mu        sync.Mutex
	requests  map[string]*entity.JustificationRequest
	createErr error
	listErr   error
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{requests: make(map[string]*entity.JustificationRequest)}
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.JustificationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id string) (*entity.JustificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, entity.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRequestRepo) list(match func(*entity.JustificationRequest) bool) []*entity.JustificationRequest {
	var out []*entity.JustificationRequest
	for _, r := range m.requests {
		if match(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockRequestRepo) ListByClient(ctx context.Context, clientID string) ([]*entity.JustificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.list(func(r *entity.JustificationRequest) bool { return r.ClientID == clientID }), nil
}

func (m *mockRequestRepo) ListByEntry(ctx context.Context, entryID string) ([]*entity.JustificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.list(func(r *entity.JustificationRequest) bool { return r.EntryID == entryID }), nil
}

func (m *mockRequestRepo) UpdateStatus(ctx context.Context, id, from, to string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return entity.ErrRequestNotFound
	}
	if r.Status != from {
		return entity.ErrStaleRequest
	}
	r.Status = to
	r.UpdatedAt = updatedAt
	return nil
}

func (m *mockRequestRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return entity.ErrRequestNotFound
	}
	delete(m.requests, id)
	return nil
}

type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []port.Notification
}

func (m *mockNotifier) Notify(ctx context.Context, n port.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
}

func (m *mockNotifier) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, n := range m.sent {
		out[i] = n.Type
	}
	return out
}

type mockRecorder struct {
	outcomes []string
}

func (m *mockRecorder) ObserveImport(variant, outcome string, added, duplicates, skipped int) {
	m.outcomes = append(m.outcomes, outcome)
}

// templateGenerator is a chain without model backends.
func templateGenerator() port.TextGenerator {
	return textgen.NewChain(nil, zap.NewNop())
}

func newTestReader(t *testing.T, repo port.EntryRepository, notifier port.Notifier) *LedgerReader {
	t.Helper()
	fresh := cache.NewMemory[Snapshot](cache.Options{Name: "fresh", TTL: time.Minute})
	lastKnown := cache.NewMemory[Snapshot](cache.Options{Name: "last-known", TTL: time.Hour})
	t.Cleanup(fresh.Destroy)
	t.Cleanup(lastKnown.Destroy)
	return NewLedgerReader(repo, fresh, lastKnown, notifier, &mockLogger{})
}
