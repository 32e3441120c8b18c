// Package reconcile implements the escrow state machine driven by payment
// provider webhooks: client-to-escrow charge capture and escrow-to-worker
// payout transfers. Webhook payloads are treated as untrusted hints; every
// charge is re-verified against the provider API before any state changes.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/choriad/backend/internal/flutterwave"
	"github.com/choriad/backend/internal/models"
	"github.com/choriad/backend/internal/notify"
	"github.com/choriad/backend/internal/repository"
)

var (
	// ErrNoReference: the webhook carried no identifier to act on.
	ErrNoReference = errors.New("no transaction reference")
	// ErrVerification: the provider API did not confirm the transaction.
	ErrVerification = errors.New("unable to verify transaction")
	// ErrBookingNotFound: no stored booking resolves from the identifiers.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrAmountMismatch: verified amount outside the reconciliation tolerance.
	ErrAmountMismatch = errors.New("amount mismatch")
)

// Outcome is the terminal disposition of a webhook delivery. All outcomes
// are acknowledged with 200 so the provider does not redeliver.
type Outcome string

const (
	OutcomeProcessed        Outcome = "processed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeNotSuccessful    Outcome = "not_successful"
	OutcomeTransferFailed   Outcome = "transfer_failed"
	OutcomeIgnored          Outcome = "ignored"
)

type Result struct {
	Outcome Outcome
	Message string
}

// ChargeEvent is the decoded, still-untrusted charge.completed payload.
type ChargeEvent struct {
	TransactionID int64
	TxRef         string
	BookingHint   string // meta.booking_id embedded at checkout, if any
}

// TransferEvent is the decoded transfer.completed payload. Transfers carry
// provider-side truth directly (there is no verify API for them), so only
// the reference is used to locate local state.
type TransferEvent struct {
	TransferID int64
	Reference  string
	Status     string
	Amount     float64
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// BookingStore is the subset of the booking repository the flows need.
// MarkPaidTx and MarkWorkerPaidTx embed the idempotency check in the update
// and report whether this call won the transition.
type BookingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByPaymentRef(ctx context.Context, ref string) (*models.Booking, error)
	MarkPaidTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, flwTxID int64, flwTxRef string, paidAt time.Time) (bool, error)
	MarkWorkerPaidTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, transferID string, paidAt time.Time) (bool, error)
}

type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	MarkAssignedTx(ctx context.Context, tx pgx.Tx, id, workerID uuid.UUID, finalAmountNGN int64) error
}

type ApplicationStore interface {
	MarkHiredTx(ctx context.Context, tx pgx.Tx, jobID, workerID uuid.UUID) error
	RejectPendingTx(ctx context.Context, tx pgx.Tx, jobID, hiredWorkerID uuid.UUID) ([]uuid.UUID, error)
}

// TransactionVerifier re-fetches a charge from the provider's authoritative API.
type TransactionVerifier interface {
	VerifyTransaction(ctx context.Context, id int64) (*flutterwave.Transaction, error)
	VerifyTransactionByReference(ctx context.Context, txRef string) (*flutterwave.Transaction, error)
}

// EnqueueNotificationTxFunc inserts an outbox job within the given
// transaction. Typically a closure over river.Client.InsertTx.
type EnqueueNotificationTxFunc func(ctx context.Context, tx pgx.Tx, args notify.DeliverArgs) error

type Service struct {
	pool         TxBeginner
	bookings     BookingStore
	jobs         JobStore
	applications ApplicationStore
	verifier     TransactionVerifier
	enqueue      EnqueueNotificationTxFunc

	toleranceNGN int64
	opsUserID    *uuid.UUID
	logger       *slog.Logger
}

func NewService(
	pool TxBeginner,
	bookings BookingStore,
	jobs JobStore,
	applications ApplicationStore,
	verifier TransactionVerifier,
	enqueue EnqueueNotificationTxFunc,
	toleranceNGN int64,
	opsUserID *uuid.UUID,
	logger *slog.Logger,
) *Service {
	return &Service{
		pool:         pool,
		bookings:     bookings,
		jobs:         jobs,
		applications: applications,
		verifier:     verifier,
		enqueue:      enqueue,
		toleranceNGN: toleranceNGN,
		opsUserID:    opsUserID,
		logger:       logger,
	}
}

// ReconcileCharge handles a charge.completed delivery end to end: verify
// against the provider, resolve the booking, reconcile the amount, and apply
// the paid/confirmed/assigned/hired/rejected fan-out in one transaction with
// notifications enqueued transactionally.
func (s *Service) ReconcileCharge(ctx context.Context, ev ChargeEvent) (*Result, error) {
	if ev.TransactionID == 0 && ev.TxRef == "" && ev.BookingHint == "" {
		return nil, ErrNoReference
	}

	verified, err := s.verifyCharge(ctx, ev)
	if err != nil {
		return nil, err
	}
	if !verified.Successful() {
		// The provider may still deliver a later success event for the same
		// tx_ref; acknowledging keeps it from retrying this one.
		return &Result{Outcome: OutcomeNotSuccessful, Message: "Transaction not successful"}, nil
	}

	booking, err := s.resolveBooking(ctx, ev.BookingHint, verified)
	if err != nil {
		return nil, err
	}

	if booking.PaymentStatus == models.BookingPaymentPaid {
		return &Result{Outcome: OutcomeAlreadyProcessed, Message: "Already processed"}, nil
	}

	if err := s.reconcileAmount(booking, verified); err != nil {
		return nil, err
	}

	job, err := s.jobs.GetByID(ctx, booking.JobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", booking.JobID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin charge tx: %w", err)
	}
	defer tx.Rollback(ctx)

	updated, err := s.bookings.MarkPaidTx(ctx, tx, booking.ID, verified.ID, verified.TxRef, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark booking paid: %w", err)
	}
	if !updated {
		// A concurrent delivery won the conditional update.
		return &Result{Outcome: OutcomeAlreadyProcessed, Message: "Already processed"}, nil
	}

	if err := s.jobs.MarkAssignedTx(ctx, tx, booking.JobID, booking.WorkerID, booking.AmountNGN); err != nil {
		return nil, fmt.Errorf("assign job: %w", err)
	}
	if err := s.applications.MarkHiredTx(ctx, tx, booking.JobID, booking.WorkerID); err != nil {
		return nil, fmt.Errorf("mark application hired: %w", err)
	}
	rejected, err := s.applications.RejectPendingTx(ctx, tx, booking.JobID, booking.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("reject pending applications: %w", err)
	}

	views := []string{"/dashboard/client", "/dashboard/worker", "/jobs/" + booking.JobID.String()}
	data := mustJSON(map[string]any{
		"booking_id": booking.ID,
		"job_id":     booking.JobID,
		"amount_ngn": booking.AmountNGN,
	})
	if err := s.enqueue(ctx, tx, notify.DeliverArgs{
		NotificationID:  notify.DeterministicID(booking.ID, models.NotificationPaymentReceived, booking.WorkerID),
		UserID:          booking.WorkerID,
		Type:            models.NotificationPaymentReceived,
		Title:           "Payment received",
		Message:         fmt.Sprintf("You have been hired for %q. Payment of ₦%d is held in escrow until the job is completed.", job.Title, booking.AmountNGN),
		Data:            data,
		InvalidateViews: views,
	}); err != nil {
		return nil, fmt.Errorf("enqueue payment_received: %w", err)
	}

	for _, workerID := range rejected {
		if err := s.enqueue(ctx, tx, notify.DeliverArgs{
			NotificationID: notify.DeterministicID(booking.ID, models.NotificationJobClosed, workerID),
			UserID:         workerID,
			Type:           models.NotificationJobClosed,
			Title:          "Job filled",
			Message:        fmt.Sprintf("%q has been assigned to another worker.", job.Title),
			Data:           mustJSON(map[string]any{"job_id": booking.JobID}),
		}); err != nil {
			return nil, fmt.Errorf("enqueue job_closed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit charge tx: %w", err)
	}

	s.logger.Info("charge reconciled",
		"booking_id", booking.ID,
		"job_id", booking.JobID,
		"flw_tx_id", verified.ID,
		"amount", verified.Amount,
		"rejected_applications", len(rejected),
	)
	return &Result{Outcome: OutcomeProcessed, Message: "Processed"}, nil
}

// ReconcileTransfer handles a transfer.completed delivery: locate the
// booking by payout reference and record the terminal transfer status.
func (s *Service) ReconcileTransfer(ctx context.Context, ev TransferEvent) (*Result, error) {
	if ev.Reference == "" {
		return nil, ErrNoReference
	}

	booking, err := s.bookings.GetByPaymentRef(ctx, ev.Reference)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: reference %q", ErrBookingNotFound, ev.Reference)
		}
		return nil, fmt.Errorf("lookup booking by reference: %w", err)
	}

	if booking.WorkerPaid {
		return &Result{Outcome: OutcomeAlreadyProcessed, Message: "Already processed"}, nil
	}

	switch strings.ToLower(ev.Status) {
	case "successful", "success", "completed":
		return s.applyTransferSuccess(ctx, booking, ev)
	case "failed", "error":
		return s.applyTransferFailure(ctx, booking, ev)
	default:
		// Pending and friends: more events are expected, nothing to record.
		return &Result{Outcome: OutcomeIgnored, Message: "Transfer status " + ev.Status + " ignored"}, nil
	}
}

func (s *Service) applyTransferSuccess(ctx context.Context, booking *models.Booking, ev TransferEvent) (*Result, error) {
	jobTitle := "your job"
	if job, err := s.jobs.GetByID(ctx, booking.JobID); err == nil {
		jobTitle = job.Title
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transfer tx: %w", err)
	}
	defer tx.Rollback(ctx)

	transferID := strconv.FormatInt(ev.TransferID, 10)
	updated, err := s.bookings.MarkWorkerPaidTx(ctx, tx, booking.ID, transferID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark worker paid: %w", err)
	}
	if !updated {
		return &Result{Outcome: OutcomeAlreadyProcessed, Message: "Already processed"}, nil
	}

	if err := s.enqueue(ctx, tx, notify.DeliverArgs{
		NotificationID: notify.DeterministicID(booking.ID, models.NotificationPaymentSent, booking.WorkerID),
		UserID:         booking.WorkerID,
		Type:           models.NotificationPaymentSent,
		Title:          "Payment sent",
		Message:        fmt.Sprintf("₦%d for %q has been sent to your bank account.", booking.AmountNGN, jobTitle),
		Data: mustJSON(map[string]any{
			"booking_id":  booking.ID,
			"amount_ngn":  booking.AmountNGN,
			"transfer_id": ev.TransferID,
		}),
		InvalidateViews: []string{"/dashboard/worker"},
	}); err != nil {
		return nil, fmt.Errorf("enqueue payment_sent: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transfer tx: %w", err)
	}

	s.logger.Info("payout reconciled", "booking_id", booking.ID, "transfer_id", ev.TransferID, "amount", ev.Amount)
	return &Result{Outcome: OutcomeProcessed, Message: "Processed"}, nil
}

// applyTransferFailure records nothing on the booking: a failed transfer is a
// valid terminal state for the webhook, handled by operations manually. The
// notification goes to the configured ops user, not the client.
func (s *Service) applyTransferFailure(ctx context.Context, booking *models.Booking, ev TransferEvent) (*Result, error) {
	s.logger.Error("transfer failed",
		"booking_id", booking.ID,
		"reference", ev.Reference,
		"transfer_id", ev.TransferID,
	)

	if s.opsUserID == nil {
		s.logger.Error("OPS_USER_ID not configured, transfer failure has no notification recipient", "reference", ev.Reference)
		return &Result{Outcome: OutcomeTransferFailed, Message: "Transfer failure acknowledged"}, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transfer-failure tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.enqueue(ctx, tx, notify.DeliverArgs{
		NotificationID: notify.DeterministicID(booking.ID, models.NotificationTransferFailed, *s.opsUserID),
		UserID:         *s.opsUserID,
		Type:           models.NotificationTransferFailed,
		Title:          "Worker payout failed",
		Message:        fmt.Sprintf("Transfer %d (reference %s) for booking %s failed and needs manual follow-up.", ev.TransferID, ev.Reference, booking.ID),
		Data: mustJSON(map[string]any{
			"booking_id":  booking.ID,
			"reference":   ev.Reference,
			"transfer_id": ev.TransferID,
		}),
	}); err != nil {
		return nil, fmt.Errorf("enqueue transfer_failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transfer-failure tx: %w", err)
	}

	return &Result{Outcome: OutcomeTransferFailed, Message: "Transfer failure acknowledged"}, nil
}

func (s *Service) verifyCharge(ctx context.Context, ev ChargeEvent) (*flutterwave.Transaction, error) {
	var (
		verified *flutterwave.Transaction
		err      error
	)
	switch {
	case ev.TransactionID > 0:
		verified, err = s.verifier.VerifyTransaction(ctx, ev.TransactionID)
	case ev.TxRef != "":
		verified, err = s.verifier.VerifyTransactionByReference(ctx, ev.TxRef)
	default:
		return nil, fmt.Errorf("%w: booking hint alone is not verifiable", ErrVerification)
	}
	if err != nil {
		s.logger.Warn("transaction verification failed", "tx_id", ev.TransactionID, "tx_ref", ev.TxRef, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	return verified, nil
}

// resolveBooking tries, in priority order: the booking id hinted in the
// webhook metadata, the booking id in the verified transaction's own
// metadata, then a lookup by the verified tx_ref.
func (s *Service) resolveBooking(ctx context.Context, hint string, verified *flutterwave.Transaction) (*models.Booking, error) {
	for _, candidate := range []string{hint, metaBookingID(verified)} {
		id, err := uuid.Parse(strings.TrimSpace(candidate))
		if err != nil {
			continue
		}
		booking, err := s.bookings.GetByID(ctx, id)
		if err == nil {
			return booking, nil
		}
		if !isNotFound(err) {
			return nil, fmt.Errorf("lookup booking %s: %w", id, err)
		}
	}

	if verified.TxRef != "" {
		booking, err := s.bookings.GetByPaymentRef(ctx, verified.TxRef)
		if err == nil {
			return booking, nil
		}
		if !isNotFound(err) {
			return nil, fmt.Errorf("lookup booking by tx_ref: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: tx_ref %q", ErrBookingNotFound, verified.TxRef)
}

func (s *Service) reconcileAmount(booking *models.Booking, verified *flutterwave.Transaction) error {
	if verified.Currency != "" && !strings.EqualFold(verified.Currency, "NGN") {
		s.logger.Error("currency mismatch", "booking_id", booking.ID, "currency", verified.Currency)
		return fmt.Errorf("%w: currency %s", ErrAmountMismatch, verified.Currency)
	}
	expected := booking.TotalNGN()
	if math.Abs(verified.Amount-float64(expected)) > float64(s.toleranceNGN) {
		// Loud on purpose: outside tolerance is a fraud or config signal.
		s.logger.Error("amount mismatch",
			"booking_id", booking.ID,
			"expected_ngn", expected,
			"verified_amount", verified.Amount,
			"tolerance_ngn", s.toleranceNGN,
		)
		return fmt.Errorf("%w: expected %d, got %.2f", ErrAmountMismatch, expected, verified.Amount)
	}
	return nil
}

func metaBookingID(tx *flutterwave.Transaction) string {
	if tx.Meta == nil {
		return ""
	}
	if v, ok := tx.Meta["booking_id"].(string); ok {
		return v
	}
	return ""
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
