package models

import (
	"time"

	"github.com/google/uuid"
)

// Booking payment status.
const (
	BookingPaymentUnpaid = "unpaid"
	BookingPaymentPaid   = "paid"
)

// Booking lifecycle status.
const (
	BookingStatusPendingPayment = "pending_payment"
	BookingStatusConfirmed      = "confirmed"
	BookingStatusInProgress     = "in_progress"
	BookingStatusCompleted      = "completed"
)

// Booking is the commercial record binding a client, a worker, and a job for
// one engagement. Payment and payout fields are written exclusively by the
// webhook reconciliation flows; a booking is marked paid at most once and
// worker_paid at most once (enforced by conditional updates in the repo).
type Booking struct {
	ID            uuid.UUID  `json:"id"`
	JobID         uuid.UUID  `json:"job_id"`
	ClientID      uuid.UUID  `json:"client_id"`
	WorkerID      uuid.UUID  `json:"worker_id"`
	AmountNGN     int64      `json:"amount_ngn"`
	CommissionNGN int64      `json:"commission_ngn"`
	PaymentStatus string     `json:"payment_status"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	WorkerPaid    bool       `json:"worker_paid"`
	WorkerPaidAt  *time.Time `json:"worker_paid_at,omitempty"`
	FlwTxID       *int64     `json:"flw_tx_id,omitempty"`
	FlwTxRef      *string    `json:"flw_tx_ref,omitempty"`
	FlwTransferID *string    `json:"flw_transfer_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TotalNGN is the amount the client is charged: base amount plus platform commission.
func (b *Booking) TotalNGN() int64 {
	return b.AmountNGN + b.CommissionNGN
}
