package entity

import "errors"

var (
	// ErrInvalidVariant is returned when a ledger variant name is not recognised
	ErrInvalidVariant = errors.New("invalid ledger variant")

	// ErrEntryNotFound is returned when an operation references an entry that is not stored
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrRequestNotFound is returned when a justification request does not exist
	ErrRequestNotFound = errors.New("justification request not found")

	// ErrInvalidRequestType is returned for request types other than payment or invoice
	ErrInvalidRequestType = errors.New("invalid justification request type")
)

var (
	// ErrStaleRequest is returned when a request changed status between read and update
	ErrStaleRequest = errors.New("justification request was modified concurrently")

	// ErrMissingClientID is returned when an operation is not scoped to a client
	ErrMissingClientID = errors.New("client id is required")

	// ErrEmptyReference is returned when a reference update carries no reference
	ErrEmptyReference = errors.New("reference is required")
)
