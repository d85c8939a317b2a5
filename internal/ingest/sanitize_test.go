package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Achat fournitures", "Achat fournitures"},
		{"entities", "Caf&eacute; &amp; th&#233;", "Café & thé"},
		{"tags stripped", "<b>Facture</b> <i>mars</i>", "Facture mars"},
		{"script removed", "ok<script>alert('x')</script>done", "ok done"},
		{"encoded script removed", "a&lt;script&gt;evil()&lt;/script&gt;b", "a b"},
		{"control chars", "line\x00one\x07", "lineone"},
		{"whitespace collapsed", "  a \t\n b  ", "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeString(tt.in))
		})
	}
}

func TestSanitizeString_Truncates(t *testing.T) {
	got := SanitizeString(strings.Repeat("é", MaxTextLength+20))
	assert.Equal(t, MaxTextLength, len([]rune(got)))
}

func TestSanitizeAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1 234,56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"1234.56", "1234.56"},
		{"(123,00)", "-123"},
		{"-45,5", "-45.5"},
		{"120,00 €", "120"},
		{"$ 1,000,000", "1000000"},
		{"12.345.678", "12345678"},
		{"250-", "-250"},
		{"", "0"},
		{"abc", "0"},
		{"1 000 000 000", "0"},
		{"999 999 999", "999999999"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SanitizeAmount(tt.in)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestFormatAmount_RoundTrip(t *testing.T) {
	values := []string{"0", "0.5", "12", "999.99", "1234.56", "-1234.56", "1000000", "987654321.09"}
	for _, v := range values {
		d := decimal.RequireFromString(v)
		for _, n := range []Notation{NotationFrench, NotationEnglish} {
			formatted := FormatAmount(d, n)
			assert.True(t, SanitizeAmount(formatted).Equal(d), "%s -> %q", v, formatted)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	d := decimal.RequireFromString("1234567.891")
	assert.Equal(t, "1 234 567,89", FormatAmount(d, NotationFrench))
	assert.Equal(t, "1,234,567.89", FormatAmount(d, NotationEnglish))
	assert.Equal(t, "-5,00", FormatAmount(decimal.NewFromInt(-5), NotationFrench))
}

func TestSanitizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"06/01/2024", "2024-01-06"},
		{"6-1-2024", "2024-01-06"},
		{"06.01.2024", "2024-01-06"},
		{"2024-01-06", "2024-01-06"},
		{"2024-01-06T10:30:00Z", "2024-01-06"},
		{"45297", "2024-01-06"},
		{"Paiement du 06/01/2024 par virement", "2024-01-06"},
		{"ref 2024-01-06 batch", "2024-01-06"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SanitizeDate(tt.in)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestSanitizeDate_Invalid(t *testing.T) {
	for _, in := range []string{"", "hello", "31/02/2024", "01/13/2024", "01/01/1899", "01/01/2101", "2024-00-10", "99999999"} {
		t.Run(in, func(t *testing.T) {
			assert.Nil(t, SanitizeDate(in))
		})
	}
}
