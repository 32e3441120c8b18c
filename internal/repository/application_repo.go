package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choriad/backend/internal/models"
)

type ApplicationRepo struct {
	pool *pgxpool.Pool
}

func NewApplicationRepo(pool *pgxpool.Pool) *ApplicationRepo {
	return &ApplicationRepo{pool: pool}
}

// MarkHiredTx marks the winning worker's application hired.
func (r *ApplicationRepo) MarkHiredTx(ctx context.Context, tx pgx.Tx, jobID, workerID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE applications SET status = $3, updated_at = now()
		WHERE job_id = $1 AND worker_id = $2
	`, jobID, workerID, models.ApplicationStatusHired)
	return err
}

// RejectPendingTx rejects every still-pending application for the job except
// the hired worker's, returning the worker ids whose bids were closed so the
// caller can fan out job_closed notifications.
func (r *ApplicationRepo) RejectPendingTx(ctx context.Context, tx pgx.Tx, jobID, hiredWorkerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx, `
		UPDATE applications SET status = $3, updated_at = now()
		WHERE job_id = $1 AND worker_id <> $2 AND status = $4
		RETURNING worker_id
	`, jobID, hiredWorkerID, models.ApplicationStatusRejected, models.ApplicationStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var workers []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		workers = append(workers, id)
	}
	return workers, rows.Err()
}
