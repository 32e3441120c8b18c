package models

import (
	"time"

	"github.com/google/uuid"
)

// Application status enum.
const (
	ApplicationStatusPending  = "pending"
	ApplicationStatusHired    = "hired"
	ApplicationStatusRejected = "rejected"
)

// Application is a worker's bid for a job. When a payment is captured the
// hired worker's application becomes hired and every other still-pending
// application for the same job is rejected.
type Application struct {
	ID        uuid.UUID `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	WorkerID  uuid.UUID `json:"worker_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
