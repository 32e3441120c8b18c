package models

import (
	"time"

	"github.com/google/uuid"
)

// Job status enum.
const (
	JobStatusOpen       = "open"
	JobStatusAssigned   = "assigned"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
)

// Job is a task posted by a client. The payment-capture flow moves it from
// open to assigned and attaches the hired worker; later transitions belong to
// other parts of the application.
type Job struct {
	ID               uuid.UUID  `json:"id"`
	ClientID         uuid.UUID  `json:"client_id"`
	Title            string     `json:"title"`
	Status           string     `json:"status"`
	AssignedWorkerID *uuid.UUID `json:"assigned_worker_id,omitempty"`
	FinalAmountNGN   *int64     `json:"final_amount_ngn,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
