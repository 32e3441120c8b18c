package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choriad/backend/internal/models"
)

// ErrNotFound is returned by lookups that resolve to no row.
var ErrNotFound = errors.New("not found")

const bookingColumns = `
	id, job_id, client_id, worker_id, amount_ngn, commission_ngn,
	payment_status, status, paid_at, completed_at, released_at,
	worker_paid, worker_paid_at, flw_tx_id, flw_tx_ref, flw_transfer_id,
	created_at, updated_at`

type BookingRepo struct {
	pool *pgxpool.Pool
}

func NewBookingRepo(pool *pgxpool.Pool) *BookingRepo {
	return &BookingRepo{pool: pool}
}

func (r *BookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

// GetByPaymentRef resolves a booking by its stored payment reference
// (the tx_ref the checkout flow generated, reused as the payout reference).
func (r *BookingRepo) GetByPaymentRef(ctx context.Context, ref string) (*models.Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+bookingColumns+` FROM bookings WHERE flw_tx_ref = $1`, ref)
	return scanBooking(row)
}

// MarkPaidTx flips the booking to paid/confirmed. The payment_status guard is
// part of the UPDATE itself so two concurrent webhook deliveries cannot both
// apply the transition; the returned bool is false when another delivery won.
func (r *BookingRepo) MarkPaidTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, flwTxID int64, flwTxRef string, paidAt time.Time) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE bookings
		SET payment_status = $2, status = $3, paid_at = $4,
		    flw_tx_id = $5, flw_tx_ref = $6, updated_at = now()
		WHERE id = $1 AND payment_status <> $2
	`, id, models.BookingPaymentPaid, models.BookingStatusConfirmed, paidAt, flwTxID, flwTxRef)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkWorkerPaidTx records a completed payout. Same conditional-update
// idempotency as MarkPaidTx: worker_paid can only flip once.
func (r *BookingRepo) MarkWorkerPaidTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, transferID string, paidAt time.Time) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE bookings
		SET worker_paid = TRUE, worker_paid_at = $2, flw_transfer_id = $3, updated_at = now()
		WHERE id = $1 AND worker_paid = FALSE
	`, id, paidAt, transferID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkReleaseInitiated stamps the escrow release. released_at doubles as the
// guard against releasing the same booking twice.
func (r *BookingRepo) MarkReleaseInitiated(ctx context.Context, id uuid.UUID, transferID string, releasedAt time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET released_at = $2, flw_transfer_id = $3, updated_at = now()
		WHERE id = $1 AND released_at IS NULL
	`, id, releasedAt, transferID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID, &b.JobID, &b.ClientID, &b.WorkerID, &b.AmountNGN, &b.CommissionNGN,
		&b.PaymentStatus, &b.Status, &b.PaidAt, &b.CompletedAt, &b.ReleasedAt,
		&b.WorkerPaid, &b.WorkerPaidAt, &b.FlwTxID, &b.FlwTxRef, &b.FlwTransferID,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
