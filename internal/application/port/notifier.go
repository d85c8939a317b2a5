package port

import (
	"context"
	"time"
)

// Notification types
const (
	NotificationImportCompleted = "import.completed"
	NotificationImportDegraded  = "import.degraded"
	NotificationLedgerDegraded  = "ledger.degraded"
	NotificationLedgerCleared   = "ledger.cleared"
	NotificationRequestCreated  = "request.created"
	NotificationRequestSent     = "request.sent"
	NotificationRequestReceived = "request.received"
	NotificationRequestRemoved  = "request.removed"
)

// Notification levels
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notification is a user-facing event. Duration is how long a client
// should display it; zero means until dismissed.
type Notification struct {
	Type      string        `json:"type"`
	Level     string        `json:"level"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
	ClientID  string        `json:"client_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Notifier delivers notifications. Delivery is best effort and never
// reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
