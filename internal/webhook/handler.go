// Package webhook exposes the payment provider callback endpoint: signature
// checking happens in middleware, this handler routes verified deliveries to
// the reconciliation flows and maps their outcomes onto the response
// contract the provider's redelivery logic expects (non-2xx means retry).
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/choriad/backend/internal/obs"
	"github.com/choriad/backend/internal/reconcile"
)

// Reconciler is implemented by reconcile.Service.
type Reconciler interface {
	ReconcileCharge(ctx context.Context, ev reconcile.ChargeEvent) (*reconcile.Result, error)
	ReconcileTransfer(ctx context.Context, ev reconcile.TransferEvent) (*reconcile.Result, error)
}

type Handler struct {
	Reconciler Reconciler
	Logger     *slog.Logger
}

type response struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// HandlePost processes one webhook delivery.
func (h *Handler) HandlePost(w http.ResponseWriter, r *http.Request) {
	var p payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, response{OK: false, Message: "Invalid JSON"})
		return
	}
	if !p.hasData() {
		obs.RecordWebhookEvent(p.Event, "rejected")
		writeJSON(w, http.StatusBadRequest, response{OK: false, Message: "No data"})
		return
	}

	switch p.Event {
	case "charge.completed":
		h.handleCharge(w, r, p.Data)
	case "transfer.completed":
		h.handleTransfer(w, r, p.Data)
	default:
		// Valid but unrecognized events must not trigger provider retries.
		h.Logger.Info("webhook event not handled", "event", p.Event)
		obs.RecordWebhookEvent(p.Event, "ignored")
		writeJSON(w, http.StatusOK, response{OK: true, Message: "Event not handled"})
	}
}

func (h *Handler) handleCharge(w http.ResponseWriter, r *http.Request, data json.RawMessage) {
	var d chargeData
	if err := json.Unmarshal(data, &d); err != nil {
		obs.RecordWebhookEvent("charge.completed", "rejected")
		writeJSON(w, http.StatusBadRequest, response{OK: false, Message: "Malformed charge data"})
		return
	}

	result, err := h.Reconciler.ReconcileCharge(r.Context(), reconcile.ChargeEvent{
		TransactionID: d.ID,
		TxRef:         d.TxRef,
		BookingHint:   d.Meta.BookingID,
	})
	h.respond(w, "charge.completed", result, err)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request, data json.RawMessage) {
	var d transferData
	if err := json.Unmarshal(data, &d); err != nil {
		obs.RecordWebhookEvent("transfer.completed", "rejected")
		writeJSON(w, http.StatusBadRequest, response{OK: false, Message: "Malformed transfer data"})
		return
	}

	result, err := h.Reconciler.ReconcileTransfer(r.Context(), reconcile.TransferEvent{
		TransferID: d.ID,
		Reference:  d.Reference,
		Status:     d.Status,
		Amount:     d.Amount,
	})
	h.respond(w, "transfer.completed", result, err)
}

func (h *Handler) respond(w http.ResponseWriter, event string, result *reconcile.Result, err error) {
	if err != nil {
		status, message := mapError(err)
		if status == http.StatusInternalServerError {
			h.Logger.Error("webhook processing failed", "event", event, "error", err)
			obs.RecordWebhookEvent(event, "error")
		} else {
			h.Logger.Warn("webhook rejected", "event", event, "error", err)
			obs.RecordWebhookEvent(event, "rejected")
		}
		writeJSON(w, status, response{OK: false, Message: message})
		return
	}
	obs.RecordWebhookEvent(event, string(result.Outcome))
	writeJSON(w, http.StatusOK, response{OK: true, Message: result.Message})
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, reconcile.ErrNoReference):
		return http.StatusBadRequest, "No transaction reference"
	case errors.Is(err, reconcile.ErrVerification):
		return http.StatusBadRequest, "Unable to verify transaction"
	case errors.Is(err, reconcile.ErrAmountMismatch):
		return http.StatusBadRequest, "Amount mismatch"
	case errors.Is(err, reconcile.ErrBookingNotFound):
		return http.StatusNotFound, "Booking not found"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// HandleGet is the liveness responder sharing the webhook route.
func (h *Handler) HandleGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"message":   "Choriad payment webhook",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
