package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/choriad/backend/internal/config"
	"github.com/choriad/backend/internal/middleware"
	"github.com/choriad/backend/internal/notifications"
	"github.com/choriad/backend/internal/payouts"
	"github.com/choriad/backend/internal/webhook"
)

// RegisterRoutes wires all HTTP endpoints onto the mux.
// The webhook POST goes through signature verification; the /api/v1 surface
// goes through Supabase JWT auth.
func RegisterRoutes(
	mux *http.ServeMux,
	cfg *config.Config,
	logger *slog.Logger,
	wh *webhook.Handler,
	nh *notifications.Handler,
	ph *payouts.Handler,
) {
	secret := cfg.FlwWebhookHash
	if cfg.InsecureWebhooks {
		logger.Warn("CHORIAD_INSECURE_WEBHOOKS is set: webhook signature verification is DISABLED")
		secret = ""
	}
	sig := middleware.WebhookSignature(secret, logger)

	mux.Handle("POST /api/payments/webhook", sig(http.HandlerFunc(wh.HandlePost)))
	mux.HandleFunc("GET /api/payments/webhook", wh.HandleGet)

	auth := middleware.JWTAuth(cfg.SupabaseJWTSecret)
	mux.Handle("GET /api/v1/notifications", auth(http.HandlerFunc(nh.List)))
	mux.Handle("POST /api/v1/notifications/read-all", auth(http.HandlerFunc(nh.MarkAllRead)))
	mux.Handle("POST /api/v1/notifications/{id}/read", auth(http.HandlerFunc(nh.MarkRead)))
	mux.Handle("POST /api/v1/bookings/{id}/release", auth(http.HandlerFunc(ph.Release)))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","timestamp":"` + time.Now().UTC().Format(time.RFC3339) + `"}`))
	})
}
