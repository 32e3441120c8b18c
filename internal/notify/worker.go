// Package notify delivers user notifications through a transactional outbox:
// the reconciliation flows insert DeliverArgs jobs with River's InsertTx in
// the same transaction that applies the state transition, so a notification
// is queued if and only if the transition committed.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/choriad/backend/internal/models"
	"github.com/choriad/backend/internal/obs"
)

// deliverNamespace seeds deterministic notification ids, so River's
// at-least-once redelivery of the same job cannot create duplicate rows.
var deliverNamespace = uuid.MustParse("6f1cf1a7-2d3e-4c61-90af-5b8a4d6c2e19")

// DeterministicID derives a stable notification id from the booking the
// event belongs to, the notification type, and the recipient.
func DeterministicID(bookingID uuid.UUID, notifType string, userID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(deliverNamespace, []byte(bookingID.String()+"|"+notifType+"|"+userID.String()))
}

type DeliverArgs struct {
	NotificationID  uuid.UUID       `json:"notification_id"`
	UserID          uuid.UUID       `json:"user_id"`
	Type            string          `json:"type"`
	Title           string          `json:"title"`
	Message         string          `json:"message"`
	Data            json.RawMessage `json:"data,omitempty"`
	InvalidateViews []string        `json:"invalidate_views,omitempty"`
}

func (DeliverArgs) Kind() string { return "deliver_notification" }

// NotificationStore is the subset of the notification repository the worker needs.
type NotificationStore interface {
	CreateIfAbsent(ctx context.Context, n *models.Notification) error
}

// ViewInvalidator signals the presentation layer that cached views are stale.
type ViewInvalidator interface {
	Invalidate(ctx context.Context, view string) error
}

type DeliverWorker struct {
	river.WorkerDefaults[DeliverArgs]
	store  NotificationStore
	views  ViewInvalidator
	logger *slog.Logger
}

func NewDeliverWorker(store NotificationStore, views ViewInvalidator, logger *slog.Logger) *DeliverWorker {
	return &DeliverWorker{store: store, views: views, logger: logger}
}

func (w *DeliverWorker) Work(ctx context.Context, job *river.Job[DeliverArgs]) error {
	args := job.Args
	start := time.Now()

	err := w.store.CreateIfAbsent(ctx, &models.Notification{
		ID:      args.NotificationID,
		UserID:  args.UserID,
		Type:    args.Type,
		Title:   args.Title,
		Message: args.Message,
		Data:    args.Data,
	})
	obs.RecordWorkerJob("deliver_notification", start, err)
	if err != nil {
		// Returning the error lets River retry with backoff.
		return err
	}

	// Invalidation is best-effort: a stale dashboard view self-heals on the
	// next write, so a cache error must not fail the delivery.
	for _, view := range args.InvalidateViews {
		if err := w.views.Invalidate(ctx, view); err != nil {
			w.logger.Warn("view invalidation failed", "view", view, "error", err)
		}
	}
	return nil
}
