package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choriad/backend/internal/models"
)

type WorkerProfileRepo struct {
	pool *pgxpool.Pool
}

func NewWorkerProfileRepo(pool *pgxpool.Pool) *WorkerProfileRepo {
	return &WorkerProfileRepo{pool: pool}
}

// GetByWorkerID returns the payout destination the worker registered.
func (r *WorkerProfileRepo) GetByWorkerID(ctx context.Context, workerID uuid.UUID) (*models.WorkerProfile, error) {
	var p models.WorkerProfile
	err := r.pool.QueryRow(ctx, `
		SELECT worker_id, bank_code, account_number, account_name
		FROM worker_profiles WHERE worker_id = $1
	`, workerID).Scan(&p.WorkerID, &p.BankCode, &p.AccountNumber, &p.AccountName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
