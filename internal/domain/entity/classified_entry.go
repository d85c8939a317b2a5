package entity

// AIMeta is the model-assisted annotation attached to an analyzed entry.
type AIMeta struct {
	SuspiciousLevel string   `json:"suspicious_level"`
	Reasons         []string `json:"reasons"`
	Suggestions     []string `json:"suggestions"`
	Provider        string   `json:"provider,omitempty"`
}

// ClassifiedEntry is either a PlainEntry or an AnalyzedEntry.
// The set of implementations is closed to this package.
type ClassifiedEntry interface {
	Entry() *LedgerEntry
	classified()
}

// PlainEntry is an entry that carries no analysis.
type PlainEntry struct {
	LedgerEntry
}

// AnalyzedEntry is an entry enriched by description analysis.
type AnalyzedEntry struct {
	LedgerEntry
	Meta AIMeta `json:"ai_meta"`
}

func (p *PlainEntry) Entry() *LedgerEntry    { return &p.LedgerEntry }
func (a *AnalyzedEntry) Entry() *LedgerEntry { return &a.LedgerEntry }

func (*PlainEntry) classified()    {}
func (*AnalyzedEntry) classified() {}

// Plain wraps e without analysis.
func Plain(e LedgerEntry) ClassifiedEntry {
	return &PlainEntry{LedgerEntry: e}
}

// Analyzed wraps e with meta.
func Analyzed(e LedgerEntry, meta AIMeta) ClassifiedEntry {
	return &AnalyzedEntry{LedgerEntry: e, Meta: meta}
}

// Analysis returns the annotation of e and whether e was analyzed at all.
func Analysis(e ClassifiedEntry) (AIMeta, bool) {
	if a, ok := e.(*AnalyzedEntry); ok {
		return a.Meta, true
	}
	return AIMeta{}, false
}

// Entries unwraps a slice of classified entries.
func Entries(in []ClassifiedEntry) []LedgerEntry {
	out := make([]LedgerEntry, 0, len(in))
	for _, e := range in {
		out = append(out, *e.Entry())
	}
	return out
}
