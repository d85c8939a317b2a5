package classify

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
)

var (
	referencePattern = regexp.MustCompile(`(?i)^(FAC|REG|CHQ|VIR)`)

	hundred = decimal.NewFromInt(100)
)

const (
	minReferenceLength   = 5
	minDescriptionLength = 10
)

// Classify returns the buckets of e for its ledger variant. It is a pure
// function of the entry and the variant.
//
// Supplier ledgers read the other way round: an unpaid bill is a credit
// with a negative balance, and a payment lacking proof is a debit.
func Classify(e *entity.LedgerEntry, variant entity.Variant) Buckets {
	var b Buckets

	switch variant {
	case entity.VariantSupplier:
		if e.Credit.IsPositive() && e.Balance.IsNegative() {
			b = b.With(BucketUnsolved)
		}
		if e.Debit.IsPositive() && !e.Justified && !HasValidReference(e.Reference) {
			b = b.With(BucketMissingJustification)
		}
	default:
		if e.Debit.IsPositive() && e.Balance.IsPositive() {
			b = b.With(BucketUnsolved)
		}
		if e.Credit.IsPositive() && !e.Justified && !HasValidReference(e.Reference) {
			b = b.With(BucketMissingJustification)
		}
	}

	if IsSuspicious(e) {
		b = b.With(BucketSuspicious)
	}
	return b
}

// HasValidReference accepts references of at least five characters that
// start with one of the known document prefixes.
func HasValidReference(ref string) bool {
	ref = strings.TrimSpace(ref)
	return utf8.RuneCountInString(ref) >= minReferenceLength && referencePattern.MatchString(ref)
}

// IsSuspicious flags round hundreds booked on a weekend or with a
// description too short to explain them.
func IsSuspicious(e *entity.LedgerEntry) bool {
	total := e.Debit.Add(e.Credit)
	if !total.Mod(hundred).IsZero() {
		return false
	}
	return isWeekend(e.Date) || utf8.RuneCountInString(e.Description) < minDescriptionLength
}

func isWeekend(d *time.Time) bool {
	if d == nil {
		return false
	}
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
