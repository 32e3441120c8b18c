package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Config carries everything the API binary reads from the environment.
// godotenv.Load in main populates the environment from .env first.
type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string

	// Flutterwave credentials and endpoints.
	FlwAPIURL      string
	FlwSecretKey   string
	FlwWebhookHash string

	// InsecureWebhooks disables webhook signature verification. Dev-only
	// escape hatch; without it a missing FLW_WEBHOOK_HASH is a startup error.
	InsecureWebhooks bool

	// AmountToleranceNGN absorbs provider-side rounding when reconciling the
	// verified charge amount against the booking total.
	AmountToleranceNGN int64

	// OpsUserID receives transfer-failure notifications for manual follow-up.
	OpsUserID *uuid.UUID

	SupabaseJWTSecret string

	LogFormat string // json (default) or console
	LogLevel  string

	AllowedOrigins []string
}

const defaultAmountToleranceNGN = 20

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               envOr("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		FlwAPIURL:          envOr("FLW_API_URL", "https://api.flutterwave.com/v3"),
		FlwSecretKey:       os.Getenv("FLW_SECRET_KEY"),
		FlwWebhookHash:     os.Getenv("FLW_WEBHOOK_HASH"),
		InsecureWebhooks:   boolEnv("CHORIAD_INSECURE_WEBHOOKS"),
		AmountToleranceNGN: defaultAmountToleranceNGN,
		SupabaseJWTSecret:  os.Getenv("SUPABASE_JWT_SECRET"),
		LogFormat:          envOr("LOG_FORMAT", "json"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
	}

	if raw := strings.TrimSpace(os.Getenv("AMOUNT_TOLERANCE_NGN")); raw != "" {
		tol, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || tol < 0 {
			return nil, fmt.Errorf("invalid AMOUNT_TOLERANCE_NGN %q", raw)
		}
		cfg.AmountToleranceNGN = tol
	}

	if raw := strings.TrimSpace(os.Getenv("OPS_USER_ID")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid OPS_USER_ID %q: %w", raw, err)
		}
		cfg.OpsUserID = &id
	}

	if raw := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if o := strings.TrimSpace(origin); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the fail-closed webhook posture: the service refuses to
// start without a webhook secret unless insecure mode is explicitly enabled.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.FlwSecretKey == "" {
		return fmt.Errorf("FLW_SECRET_KEY is required")
	}
	if c.FlwWebhookHash == "" && !c.InsecureWebhooks {
		return fmt.Errorf("FLW_WEBHOOK_HASH is required (set CHORIAD_INSECURE_WEBHOOKS=1 to run without signature verification in dev)")
	}
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	}
	return false
}
