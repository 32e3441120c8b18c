// Package payouts initiates the escrow-to-worker release: the client who
// owns a completed, paid booking asks the platform to pay the worker out.
// The transfer's terminal status arrives asynchronously on the webhook.
package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/choriad/backend/internal/flutterwave"
	"github.com/choriad/backend/internal/middleware"
	"github.com/choriad/backend/internal/models"
	"github.com/choriad/backend/internal/repository"
)

// BookingRepo is the subset of the booking repository the handler needs.
type BookingRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	MarkReleaseInitiated(ctx context.Context, id uuid.UUID, transferID string, releasedAt time.Time) (bool, error)
}

// WorkerProfileRepo resolves a worker's payout destination.
type WorkerProfileRepo interface {
	GetByWorkerID(ctx context.Context, workerID uuid.UUID) (*models.WorkerProfile, error)
}

// TransferCreator is the provider-side payout API.
type TransferCreator interface {
	CreateTransfer(ctx context.Context, req flutterwave.TransferRequest) (*flutterwave.Transfer, error)
}

type Handler struct {
	Bookings BookingRepo
	Profiles WorkerProfileRepo
	Provider TransferCreator
	Logger   *slog.Logger
}

// Release handles POST /api/v1/bookings/{id}/release.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	bookingID, ok := extractBookingID(r)
	if !ok {
		http.Error(w, `{"error":"invalid booking id"}`, http.StatusBadRequest)
		return
	}

	booking, err := h.Bookings.GetByID(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, `{"error":"booking not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("load booking for release", "booking_id", bookingID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	if booking.ClientID != userID {
		http.Error(w, `{"error":"only the booking's client can release payment"}`, http.StatusForbidden)
		return
	}
	if msg, ok := releasable(booking); !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": msg})
		return
	}

	profile, err := h.Profiles.GetByWorkerID(r.Context(), booking.WorkerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "worker has no payout details on file"})
			return
		}
		h.Logger.Error("load worker profile", "worker_id", booking.WorkerID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	// The transfer reuses the booking's payment reference so the
	// transfer.completed webhook can find this booking again.
	transfer, err := h.Provider.CreateTransfer(r.Context(), flutterwave.TransferRequest{
		AccountBank:   profile.BankCode,
		AccountNumber: profile.AccountNumber,
		Amount:        booking.AmountNGN,
		Currency:      "NGN",
		Reference:     *booking.FlwTxRef,
		Narration:     fmt.Sprintf("Choriad payout for booking %s", booking.ID),
		Beneficiary:   profile.AccountName,
	})
	if err != nil {
		h.Logger.Error("create transfer", "booking_id", booking.ID, "error", err)
		http.Error(w, `{"error":"payout initiation failed"}`, http.StatusBadGateway)
		return
	}

	updated, err := h.Bookings.MarkReleaseInitiated(r.Context(), booking.ID, strconv.FormatInt(transfer.ID, 10), time.Now().UTC())
	if err != nil {
		h.Logger.Error("mark release initiated", "booking_id", booking.ID, "transfer_id", transfer.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !updated {
		// Lost a race with another release request after the transfer was
		// created; the provider de-duplicates transfers by reference.
		writeJSON(w, http.StatusConflict, map[string]string{"error": "payout already initiated"})
		return
	}

	h.Logger.Info("payout initiated", "booking_id", booking.ID, "transfer_id", transfer.ID, "amount_ngn", booking.AmountNGN)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"booking_id":  booking.ID,
		"transfer_id": transfer.ID,
		"status":      "initiated",
	})
}

// releasable checks the escrow preconditions: the job is done, the client's
// money is in escrow, and the worker has not been paid or queued for payment.
func releasable(b *models.Booking) (string, bool) {
	switch {
	case b.PaymentStatus != models.BookingPaymentPaid:
		return "booking has not been paid", false
	case b.Status != models.BookingStatusCompleted:
		return "booking is not completed", false
	case b.WorkerPaid:
		return "worker has already been paid", false
	case b.ReleasedAt != nil:
		return "payout already initiated", false
	case b.FlwTxRef == nil || *b.FlwTxRef == "":
		return "booking has no payment reference", false
	}
	return "", true
}

func extractBookingID(r *http.Request) (uuid.UUID, bool) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/bookings/")
	parts := strings.SplitN(path, "/", 2)
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
