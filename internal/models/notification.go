package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification type tags emitted by the reconciliation flows.
const (
	NotificationPaymentReceived = "payment_received"
	NotificationPaymentSent     = "payment_sent"
	NotificationJobClosed       = "job_closed"
	NotificationTransferFailed  = "transfer_failed"
)

// Notification is a fire-and-forget message to a user. Rows are created by
// the notify worker and never mutated except for the read flag.
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}
