package entity

import "time"

// JustificationRequest asks a counterparty for a missing supporting document.
// Status only moves forward: pending, sent, received.
type JustificationRequest struct {
	ID                 string    `json:"id"`
	EntryID            string    `json:"entry_id"`
	ClientID           string    `json:"client_id"`
	Variant            Variant   `json:"variant"`
	Type               string    `json:"type"`
	Status             string    `json:"status"`
	Message            string    `json:"message"`
	IsGeneratedByModel bool      `json:"is_generated_by_model"`
	Provider           string    `json:"provider"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsOpen reports whether the document has not been received yet.
func (r *JustificationRequest) IsOpen() bool {
	return r.Status != RequestStatusReceived
}
