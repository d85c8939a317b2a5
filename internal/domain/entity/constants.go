package entity

import (
	"fmt"
	"strings"
)

// Variant identifies which ledger a collection of entries belongs to.
type Variant string

const (
	VariantClient   Variant = "client"
	VariantSupplier Variant = "supplier"
	VariantMisc     Variant = "misc"
)

var variantAliases = map[string]Variant{
	"client":       VariantClient,
	"clients":      VariantClient,
	"customer":     VariantClient,
	"supplier":     VariantSupplier,
	"suppliers":    VariantSupplier,
	"fournisseur":  VariantSupplier,
	"fournisseurs": VariantSupplier,
	"misc":         VariantMisc,
	"divers":       VariantMisc,
	"other":        VariantMisc,
}

// ParseVariant accepts the canonical names and the common French/English aliases.
func ParseVariant(s string) (Variant, error) {
	if v, ok := variantAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVariant, s)
}

// IsValid reports whether v is one of the three ledger variants.
func (v Variant) IsValid() bool {
	return v == VariantClient || v == VariantSupplier || v == VariantMisc
}

func (v Variant) String() string {
	return string(v)
}

// CounterpartyLabel is the JSON name of the counterparty column for the variant.
func (v Variant) CounterpartyLabel() string {
	switch v {
	case VariantClient:
		return "client_name"
	case VariantSupplier:
		return "supplier_name"
	default:
		return "account_name"
	}
}

// Request type constants for JustificationRequest
const (
	RequestTypePayment = "payment"
	RequestTypeInvoice = "invoice"
)

// Request status constants for JustificationRequest.
// They mirror the states of the request lifecycle machine.
const (
	RequestStatusPending  = "pending"
	RequestStatusSent     = "sent"
	RequestStatusReceived = "received"
)

// IsValidRequestType reports whether t is a known justification request type.
func IsValidRequestType(t string) bool {
	return t == RequestTypePayment || t == RequestTypeInvoice
}

// Suspicious level constants for AIMeta
const (
	SuspiciousLow    = "low"
	SuspiciousMedium = "medium"
	SuspiciousHigh   = "high"
)

// NormalizeSuspiciousLevel maps free-form model output onto the three levels.
// Unknown values collapse to low.
func NormalizeSuspiciousLevel(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SuspiciousHigh, "eleve", "élevé", "critical":
		return SuspiciousHigh
	case SuspiciousMedium, "moyen", "moderate":
		return SuspiciousMedium
	default:
		return SuspiciousLow
	}
}
