package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/choriad/backend/internal/cache"
	"github.com/choriad/backend/internal/config"
	"github.com/choriad/backend/internal/flutterwave"
	"github.com/choriad/backend/internal/notifications"
	"github.com/choriad/backend/internal/notify"
	"github.com/choriad/backend/internal/obs"
	"github.com/choriad/backend/internal/payouts"
	"github.com/choriad/backend/internal/reconcile"
	"github.com/choriad/backend/internal/repository"
	"github.com/choriad/backend/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	shutdownTracing, err := obs.InitTracing("choriad-api")
	if err != nil {
		logger.Error("Tracing init failed (continuing without)", "error", err)
	}
	if shutdownTracing != nil {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("Cannot reach PostgreSQL. Ensure it is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to PostgreSQL")

	// River migrations (outbox job tables).
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		logger.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		logger.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, view invalidation disabled", "error", err)
			rdb = nil
		}
	}
	invalidator := cache.New(rdb)

	bookingRepo := repository.NewBookingRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	applicationRepo := repository.NewApplicationRepo(pool)
	notificationRepo := repository.NewNotificationRepo(pool)
	profileRepo := repository.NewWorkerProfileRepo(pool)

	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewDeliverWorker(notificationRepo, invalidator, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		logger.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	enqueueNotification := func(ctx context.Context, tx pgx.Tx, args notify.DeliverArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}

	provider := flutterwave.New(cfg.FlwAPIURL, cfg.FlwSecretKey)

	reconciler := reconcile.NewService(
		pool,
		bookingRepo,
		jobRepo,
		applicationRepo,
		provider,
		enqueueNotification,
		cfg.AmountToleranceNGN,
		cfg.OpsUserID,
		logger,
	)

	webhookHandler := &webhook.Handler{Reconciler: reconciler, Logger: logger}
	notificationsHandler := notifications.NewHandler(notificationRepo, logger)
	payoutsHandler := &payouts.Handler{
		Bookings: bookingRepo,
		Profiles: profileRepo,
		Provider: provider,
		Logger:   logger,
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, cfg, logger, webhookHandler, notificationsHandler, payoutsHandler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	rootHandler := obs.WrapHTTP("choriad-api", corsHandler)

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			logger.Error("River client stopped", "error", err)
		}
	}()

	addr := "0.0.0.0:" + cfg.Port
	logger.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, rootHandler); err != nil {
		logger.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
