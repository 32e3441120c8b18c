// Package notifications serves the authenticated read surface for the
// notifications the reconciliation flows emit.
package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/choriad/backend/internal/middleware"
	"github.com/choriad/backend/internal/models"
)

// Repo is the subset of the notification repository the handler needs.
type Repo interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type Handler struct {
	Repo   Repo
	Logger *slog.Logger
}

func NewHandler(repo Repo, logger *slog.Logger) *Handler {
	return &Handler{Repo: repo, Logger: logger}
}

// List handles GET /api/v1/notifications.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	list, err := h.Repo.ListByUser(r.Context(), userID, limit)
	if err != nil {
		h.Logger.Error("list notifications", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// MarkRead handles POST /api/v1/notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	id, ok := extractNotificationID(r)
	if !ok {
		http.Error(w, `{"error":"invalid notification id"}`, http.StatusBadRequest)
		return
	}

	updated, err := h.Repo.MarkRead(r.Context(), id, userID)
	if err != nil {
		h.Logger.Error("mark notification read", "id", id, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !updated {
		http.Error(w, `{"error":"notification not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// MarkAllRead handles POST /api/v1/notifications/read-all.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	n, err := h.Repo.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.Logger.Error("mark all notifications read", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// extractNotificationID parses the id from /api/v1/notifications/{id}/read.
func extractNotificationID(r *http.Request) (uuid.UUID, bool) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/notifications/")
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
