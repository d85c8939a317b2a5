package ingest

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxTextLength caps sanitized free text, in runes.
const MaxTextLength = 500

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleBlock  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	htmlTag     = regexp.MustCompile(`(?s)<[^>]*>`)

	maxAmount = decimal.NewFromInt(999_999_999)
)

// SanitizeString decodes HTML entities, removes markup and control
// characters, collapses whitespace and caps the result at MaxTextLength runes.
func SanitizeString(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	s = scriptBlock.ReplaceAllString(s, " ")
	s = styleBlock.ReplaceAllString(s, " ")
	s = htmlTag.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	if utf8.RuneCountInString(s) > MaxTextLength {
		s = string([]rune(s)[:MaxTextLength])
	}
	return s
}

// SanitizeAmount parses a locale-formatted amount. Unparseable input and
// magnitudes above 999 999 999 yield zero.
//
// The rightmost of comma and dot is the decimal separator when both occur.
// A single comma is a decimal separator; repeated commas or dots are
// thousands separators.
func SanitizeAmount(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			negative = !negative
		}
	}
	s = b.String()

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	if s == "" || s == "." {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	if d.Abs().GreaterThan(maxAmount) {
		return decimal.Zero
	}
	if negative {
		d = d.Neg()
	}
	return d
}

// Notation selects the separators used by FormatAmount.
type Notation int

const (
	// NotationFrench renders 1 234,56
	NotationFrench Notation = iota
	// NotationEnglish renders 1,234.56
	NotationEnglish
)

// FormatAmount renders d with two decimals in the given notation.
// SanitizeAmount(FormatAmount(d, n)) equals d rounded to two decimals.
func FormatAmount(d decimal.Decimal, n Notation) string {
	thousands, point := " ", ","
	if n == NotationEnglish {
		thousands, point = ",", "."
	}

	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if d.IsNegative() && !d.Round(2).IsZero() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(thousands)
		}
		b.WriteRune(r)
	}
	b.WriteString(point)
	b.WriteString(frac)
	return b.String()
}

var (
	dmyExact     = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})$`)
	ymdExact     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:[T ].*)?$`)
	serialNumber = regexp.MustCompile(`^\d{5}(?:\.\d+)?$`)
	dmyAnywhere  = regexp.MustCompile(`(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})`)
	ymdAnywhere  = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)

	excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
)

const (
	minYear = 1900
	maxYear = 2100
)

// SanitizeDate parses the supported day-first and ISO layouts, spreadsheet
// serial numbers, and finally the first date-shaped substring. It returns
// nil for anything it cannot place between 1900 and 2100.
func SanitizeDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	if m := dmyExact.FindStringSubmatch(s); m != nil {
		return civilDate(m[3], m[2], m[1])
	}
	if m := ymdExact.FindStringSubmatch(s); m != nil {
		return civilDate(m[1], m[2], m[3])
	}
	if serialNumber.MatchString(s) {
		return serialDate(s)
	}

	dmy := dmyAnywhere.FindStringSubmatchIndex(s)
	ymd := ymdAnywhere.FindStringSubmatchIndex(s)
	switch {
	case dmy != nil && (ymd == nil || dmy[0] <= ymd[0]):
		return civilDate(s[dmy[6]:dmy[7]], s[dmy[4]:dmy[5]], s[dmy[2]:dmy[3]])
	case ymd != nil:
		return civilDate(s[ymd[2]:ymd[3]], s[ymd[4]:ymd[5]], s[ymd[6]:ymd[7]])
	}
	return nil
}

func civilDate(year, month, day string) *time.Time {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}
	if y < minYear || y > maxYear || m < 1 || m > 12 || d < 1 {
		return nil
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return nil
	}
	return &t
}

func serialDate(s string) *time.Time {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	t := excelEpoch.AddDate(0, 0, int(f))
	if t.Year() < minYear || t.Year() > maxYear {
		return nil
	}
	return &t
}
