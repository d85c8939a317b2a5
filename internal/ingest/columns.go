// Package ingest turns raw spreadsheet rows into canonical ledger entries.
package ingest

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/garyjia/ledger-backoffice/internal/domain/entity"
)

// Field is a canonical column of a ledger export.
type Field string

const (
	FieldDate          Field = "date"
	FieldAccountNumber Field = "account_number"
	FieldAccountName   Field = "account_name"
	FieldDescription   Field = "description"
	FieldDebit         Field = "debit"
	FieldCredit        Field = "credit"
	FieldAmount        Field = "amount"
	FieldReference     Field = "reference"
	FieldBalance       Field = "balance"
)

// lookupOrder is also the order used when counting recognised headers.
var lookupOrder = []Field{
	FieldDate, FieldAccountNumber, FieldAccountName, FieldDescription,
	FieldDebit, FieldCredit, FieldAmount, FieldReference, FieldBalance,
}

// Row is one source row keyed by its header labels, in column order.
// Keys holds the normalized headers when the row was built by NewRows.
type Row struct {
	Index   int
	Headers []string
	Keys    []string
	Values  []string
}

// NewRows pairs every data row of grid with headers. Index is the position
// of the row in the original sheet, offset by first.
func NewRows(headers []string, grid [][]string, first int) []Row {
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = NormalizeHeader(h)
	}
	rows := make([]Row, 0, len(grid))
	for i, values := range grid {
		rows = append(rows, Row{Index: first + i, Headers: headers, Keys: keys, Values: values})
	}
	return rows
}

// Get returns the raw value under header h.
func (r Row) Get(h string) string {
	for i, header := range r.Headers {
		if header == h && i < len(r.Values) {
			return r.Values[i]
		}
	}
	return ""
}

// IsBlank reports whether every cell of the row is empty.
func (r Row) IsBlank() bool {
	for _, v := range r.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

var baseCandidates = map[Field][]string{
	FieldDate: {
		"date", "date operation", "date ecriture", "date piece", "date comptable",
		"jour", "transaction date", "posting date",
	},
	FieldAccountNumber: {
		"numero de compte", "n° compte", "no compte", "num compte", "compte",
		"code tiers", "account number", "account no", "account",
	},
	FieldAccountName: {
		"nom", "intitule", "intitule compte", "libelle compte", "nom du compte",
		"raison sociale", "tiers", "account name", "name",
	},
	FieldDescription: {
		"libelle", "libelle ecriture", "description", "designation", "label",
		"memo", "narration", "commentaire", "objet",
	},
	FieldDebit: {
		"debit", "montant debit", "mouvement debit", "debit amount", "debits",
	},
	FieldCredit: {
		"credit", "montant credit", "mouvement credit", "credit amount", "credits",
	},
	FieldAmount: {
		"montant", "amount", "montant ttc",
	},
	FieldReference: {
		"reference", "ref", "n° piece", "numero piece", "piece", "facture",
		"justificatif", "document", "voucher",
	},
	FieldBalance: {
		"solde", "balance", "solde cumule", "cumul", "solde progressif",
	},
}

// variantCandidates are tried before the base candidates of the same field.
var variantCandidates = map[entity.Variant]map[Field][]string{
	entity.VariantClient: {
		FieldAccountNumber: {"code client", "n° client", "numero client", "compte client"},
		FieldAccountName:   {"client", "nom client", "customer", "customer name"},
	},
	entity.VariantSupplier: {
		FieldAccountNumber: {"code fournisseur", "n° fournisseur", "numero fournisseur", "compte fournisseur"},
		FieldAccountName:   {"fournisseur", "nom fournisseur", "supplier", "supplier name", "vendor"},
	},
	entity.VariantMisc: {
		FieldAccountNumber: {"compte general", "n° compte general"},
		FieldAccountName:   {"intitule du compte", "nom compte"},
	},
}

// excluded headers are never matched for a field, whatever the stage.
// They keep balance columns from passing as debit/credit and name columns
// from passing as account numbers.
var excluded = map[Field]*regexp.Regexp{
	FieldDate:          regexp.MustCompile(`echeance|due|valeur`),
	FieldAccountNumber: regexp.MustCompile(`\bnom\b|intitule|libelle|name|raison`),
	FieldAccountName:   regexp.MustCompile(`numero|n°|\bno\b|\bnum\b|code|number`),
	FieldDescription:   regexp.MustCompile(`compte|account`),
	FieldDebit:         regexp.MustCompile(`solde|balance|cumul|total`),
	FieldCredit:        regexp.MustCompile(`solde|balance|cumul|total`),
	FieldAmount:        regexp.MustCompile(`solde|balance|cumul|total|debit|credit`),
	FieldReference:     regexp.MustCompile(`date`),
}

var fallbacks = map[Field]*regexp.Regexp{
	FieldDate:          regexp.MustCompile(`\bdate\b|\bdt\b`),
	FieldAccountNumber: regexp.MustCompile(`(n°|\bno\b|num|code).*(compte|tiers|client|fournisseur)|compte.*(n°|\bno\b|num)`),
	FieldAccountName:   regexp.MustCompile(`compte.*(nom|intitule|libelle)|(nom|intitule|libelle).*compte|raison sociale`),
	FieldDescription:   regexp.MustCompile(`libel|descr|design`),
	FieldDebit:         regexp.MustCompile(`debit`),
	FieldCredit:        regexp.MustCompile(`credit`),
	FieldAmount:        regexp.MustCompile(`montant|amount`),
	FieldReference:     regexp.MustCompile(`ref|piece|facture|justif`),
	FieldBalance:       regexp.MustCompile(`solde|balance`),
}

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// NormalizeHeader case-folds a label, strips diacritics and invisible
// spacing characters, and collapses whitespace.
func NormalizeHeader(s string) string {
	s = strings.NewReplacer("\ufeff", "", "\u00a0", " ", "\u202f", " ", "_", " ", ":", " ").Replace(s)
	t := transform.Chain(norm.NFD, stripMarks, norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Columns resolves canonical fields for one ledger variant.
type Columns struct {
	candidates map[Field][]string
}

// NewColumns builds the candidate tables for variant.
func NewColumns(variant entity.Variant) *Columns {
	c := &Columns{candidates: make(map[Field][]string, len(baseCandidates))}
	for field, labels := range baseCandidates {
		list := append([]string(nil), variantCandidates[variant][field]...)
		list = append(list, labels...)
		for i := range list {
			list[i] = NormalizeHeader(list[i])
		}
		c.candidates[field] = list
	}
	return c
}

// Lookup returns the value of field on row, or "" when no column matches.
// Matching runs in three stages: exact label, header containing a label,
// then a per-field regexp.
// Within a stage the first header holding a non-empty value wins.
func (c *Columns) Lookup(row Row, field Field) string {
	headers := row.Keys
	if len(headers) != len(row.Headers) {
		headers = make([]string, len(row.Headers))
		for i, h := range row.Headers {
			headers[i] = NormalizeHeader(h)
		}
	}
	value := func(i int) string {
		if i < len(row.Values) {
			return strings.TrimSpace(row.Values[i])
		}
		return ""
	}

	if i := c.match(headers, field, value); i >= 0 {
		return value(i)
	}
	return ""
}

// HeaderIndex returns the position of the column matching field among
// headers, or -1. Empty values are not considered.
func (c *Columns) HeaderIndex(headers []string, field Field) int {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = NormalizeHeader(h)
	}
	return c.match(normalized, field, nil)
}

func (c *Columns) match(headers []string, field Field, value func(int) string) int {
	usable := func(i int) bool {
		h := headers[i]
		if h == "" {
			return false
		}
		if ex := excluded[field]; ex != nil && ex.MatchString(h) {
			return false
		}
		return value == nil || value(i) != ""
	}

	for _, cand := range c.candidates[field] {
		for i, h := range headers {
			if h == cand && usable(i) {
				return i
			}
		}
	}
	for _, cand := range c.candidates[field] {
		for i, h := range headers {
			if !usable(i) {
				continue
			}
			if strings.Contains(h, cand) {
				return i
			}
		}
	}
	if re := fallbacks[field]; re != nil {
		for i, h := range headers {
			if usable(i) && re.MatchString(h) {
				return i
			}
		}
	}
	return -1
}

// RecognizedFields counts the distinct canonical fields found among headers.
func (c *Columns) RecognizedFields(headers []string) int {
	seen := make(map[int]bool)
	n := 0
	for _, field := range lookupOrder {
		i := c.HeaderIndex(headers, field)
		if i >= 0 && !seen[i] {
			seen[i] = true
			n++
		}
	}
	return n
}
