package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choriad/backend/internal/models"
)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := r.pool.QueryRow(ctx, `
		SELECT id, client_id, title, status, assigned_worker_id, final_amount_ngn, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id).Scan(&j.ID, &j.ClientID, &j.Title, &j.Status, &j.AssignedWorkerID, &j.FinalAmountNGN, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// MarkAssignedTx attaches the hired worker and the final agreed amount as
// part of the payment-capture transaction.
func (r *JobRepo) MarkAssignedTx(ctx context.Context, tx pgx.Tx, id, workerID uuid.UUID, finalAmountNGN int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = $2, assigned_worker_id = $3, final_amount_ngn = $4, updated_at = now()
		WHERE id = $1
	`, id, models.JobStatusAssigned, workerID, finalAmountNGN)
	return err
}
