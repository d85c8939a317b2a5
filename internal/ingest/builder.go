package ingest

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
)

// totalRow matches report lines that summarise other rows.
var totalRow = regexp.MustCompile(`^(sous[ -]?)?total\b|^solde\b|^report\b|a reporter|^cumul\b|^totaux\b`)

// BuildResult is the outcome of folding one batch of rows.
type BuildResult struct {
	Entries           []entity.LedgerEntry
	Rows              int
	HeaderRows        int
	SkippedMissingKey int
	SkippedTotals     int
}

// Skipped is the number of rows that produced no entry and no header.
func (r BuildResult) Skipped() int {
	return r.SkippedMissingKey + r.SkippedTotals
}

// Builder converts sanitized rows into canonical ledger entries.
type Builder struct {
	now   func() time.Time
	newID func() string
}

// BuilderOption customises a Builder.
type BuilderOption func(*Builder)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithIDGenerator overrides entry ID generation.
func WithIDGenerator(newID func() string) BuilderOption {
	return func(b *Builder) { b.newID = newID }
}

// NewBuilder creates a builder that stamps entries with uuids and the current time.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// carryState holds the last account seen in the batch. Account header rows
// replace it; movement rows without an account inherit it.
type carryState struct {
	accountName   string
	accountNumber string
}

type outcome int

const (
	outcomeEntry outcome = iota
	outcomeHeader
	outcomeMissingKey
	outcomeTotal
	outcomeBlank
)

// Build folds rows in order. It never fails: malformed cells become
// neutral values and unusable rows are counted, not rejected.
func (b *Builder) Build(clientID string, variant entity.Variant, rows []Row) BuildResult {
	cols := NewColumns(variant)
	created := b.now().UTC()

	var (
		state  carryState
		result BuildResult
	)
	for _, row := range rows {
		if row.IsBlank() {
			continue
		}
		result.Rows++

		var (
			entry entity.LedgerEntry
			out   outcome
		)
		state, entry, out = b.step(state, cols, row)
		switch out {
		case outcomeEntry:
			entry.ClientID = clientID
			entry.Variant = variant
			entry.CreatedAt = created
			result.Entries = append(result.Entries, entry)
		case outcomeHeader:
			result.HeaderRows++
		case outcomeMissingKey:
			result.SkippedMissingKey++
		case outcomeTotal:
			result.SkippedTotals++
		}
	}
	return result
}

func (b *Builder) step(state carryState, cols *Columns, row Row) (carryState, entity.LedgerEntry, outcome) {
	name := SanitizeString(cols.Lookup(row, FieldAccountName))
	number := SanitizeString(cols.Lookup(row, FieldAccountNumber))
	description := SanitizeString(cols.Lookup(row, FieldDescription))
	reference := SanitizeString(cols.Lookup(row, FieldReference))
	date := SanitizeDate(cols.Lookup(row, FieldDate))

	if isTotalRow(description) || isTotalRow(name) || isTotalRow(number) || isTotalRow(firstCell(row)) {
		return state, entity.LedgerEntry{}, outcomeTotal
	}

	debit, credit := b.amounts(cols, row)
	if debit.IsZero() && credit.IsZero() {
		if (name != "" || number != "") && date == nil {
			return carryState{accountName: name, accountNumber: number}, entity.LedgerEntry{}, outcomeHeader
		}
		return state, entity.LedgerEntry{}, outcomeMissingKey
	}

	if name == "" && number == "" {
		name, number = state.accountName, state.accountNumber
	} else {
		if name == "" && number == state.accountNumber {
			name = state.accountName
		}
		if number == "" && name == state.accountName {
			number = state.accountNumber
		}
		state = carryState{accountName: name, accountNumber: number}
	}

	if date == nil && name == "" && number == "" && description == "" {
		return state, entity.LedgerEntry{}, outcomeMissingKey
	}

	return state, entity.LedgerEntry{
		ID:               b.newID(),
		Date:             date,
		AccountNumber:    number,
		CounterpartyName: name,
		Description:      description,
		Debit:            debit,
		Credit:           credit,
		Balance:          debit.Sub(credit),
		Reference:        reference,
		ImportIndex:      row.Index,
	}, outcomeEntry
}

// amounts resolves debit and credit. A signed single amount column is used
// when neither side is present, and negative sides are moved to the other
// column so both values end up non-negative.
func (b *Builder) amounts(cols *Columns, row Row) (decimal.Decimal, decimal.Decimal) {
	debit := SanitizeAmount(cols.Lookup(row, FieldDebit))
	credit := SanitizeAmount(cols.Lookup(row, FieldCredit))

	if debit.IsZero() && credit.IsZero() {
		amount := SanitizeAmount(cols.Lookup(row, FieldAmount))
		if amount.IsPositive() {
			debit = amount
		} else {
			credit = amount.Neg()
		}
	}
	if debit.IsNegative() {
		credit = credit.Add(debit.Neg())
		debit = decimal.Zero
	}
	if credit.IsNegative() {
		debit = debit.Add(credit.Neg())
		credit = decimal.Zero
	}
	return debit, credit
}

func isTotalRow(s string) bool {
	if s == "" {
		return false
	}
	return totalRow.MatchString(NormalizeHeader(s))
}

func firstCell(row Row) string {
	for _, v := range row.Values {
		if v != "" {
			return v
		}
	}
	return ""
}
