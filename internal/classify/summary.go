package classify

import "github.com/garyjia/ledger-backoffice/internal/domain/entity"

// Summary counts the buckets of a collection. Buckets overlap, so the
// per-bucket counts may add up to more than Flagged.
type Summary struct {
	Total                int `json:"total"`
	Clean                int `json:"clean"`
	Flagged              int `json:"flagged"`
	Unsolved             int `json:"unsolved"`
	MissingJustification int `json:"missing_justification"`
	Suspicious           int `json:"suspicious"`
	Analyzed             int `json:"analyzed"`
}

// Summarize classifies every entry of one ledger.
func Summarize(entries []entity.ClassifiedEntry, variant entity.Variant) Summary {
	var s Summary
	for _, ce := range entries {
		s.Add(Classify(ce.Entry(), variant))
		if _, ok := entity.Analysis(ce); ok {
			s.Analyzed++
		}
	}
	return s
}

// Add accounts for one entry's buckets.
func (s *Summary) Add(b Buckets) {
	s.Total++
	if b.IsClean() {
		s.Clean++
		return
	}
	s.Flagged++
	if b.Has(BucketUnsolved) {
		s.Unsolved++
	}
	if b.Has(BucketMissingJustification) {
		s.MissingJustification++
	}
	if b.Has(BucketSuspicious) {
		s.Suspicious++
	}
}

// Filter keeps the entries that sit in bucket.
func Filter(entries []entity.ClassifiedEntry, variant entity.Variant, bucket Bucket) []entity.ClassifiedEntry {
	out := make([]entity.ClassifiedEntry, 0, len(entries))
	for _, ce := range entries {
		if Classify(ce.Entry(), variant).Has(bucket) {
			out = append(out, ce)
		}
	}
	return out
}
