package dedup

import "github.com/garyjia/ledger-backoffice/internal/domain/entity"

// SignatureSet holds the signatures of one (client, variant) collection.
// It must never be shared across tenants or ledgers.
type SignatureSet map[string]struct{}

// NewSignatureSet builds a set from signatures.
func NewSignatureSet(signatures ...string) SignatureSet {
	s := make(SignatureSet, len(signatures))
	for _, sig := range signatures {
		s.Add(sig)
	}
	return s
}

// SetOf builds a set from stored entries, recomputing signatures that are missing.
func SetOf(entries []entity.ClassifiedEntry) SignatureSet {
	s := make(SignatureSet, len(entries))
	for _, ce := range entries {
		e := ce.Entry()
		sig := e.Signature
		if sig == "" {
			sig = Signature(e)
		}
		s.Add(sig)
	}
	return s
}

// Has reports membership.
func (s SignatureSet) Has(sig string) bool {
	_, ok := s[sig]
	return ok
}

// Add inserts sig.
func (s SignatureSet) Add(sig string) {
	s[sig] = struct{}{}
}

// Len returns the number of signatures.
func (s SignatureSet) Len() int {
	return len(s)
}

// Result splits candidates into new items and items already known.
type Result[T any] struct {
	Unique     []T
	Duplicates []T
}

// DedupBySignature keeps the candidates whose signature is neither in
// existing nor carried by an earlier candidate of the same batch. Order is
// preserved and existing is not modified.
func DedupBySignature[T any](candidates []T, signature func(T) string, existing SignatureSet) Result[T] {
	seen := make(SignatureSet, len(candidates))
	result := Result[T]{Unique: make([]T, 0, len(candidates))}
	for _, c := range candidates {
		sig := signature(c)
		if existing.Has(sig) || seen.Has(sig) {
			result.Duplicates = append(result.Duplicates, c)
			continue
		}
		seen.Add(sig)
		result.Unique = append(result.Unique, c)
	}
	return result
}

// Entries is DedupBySignature specialised for ledger entries.
func Entries(candidates []entity.LedgerEntry, existing SignatureSet) Result[entity.LedgerEntry] {
	return DedupBySignature(candidates, func(e entity.LedgerEntry) string {
		if e.Signature != "" {
			return e.Signature
		}
		return Signature(&e)
	}, existing)
}
