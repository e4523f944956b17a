package app

import (
	"testing"
	"time"

	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ACCESS_TOKEN_TTL", "900")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://fletar.com.ar, ,https://admin.fletar.com.ar ")
	t.Setenv("WRITE_RATE_PER_MINUTE", "12")
	t.Setenv("NOTIFY_MAX_ATTEMPTS", "7")
	t.Setenv("JWT_SECRET_KEY", "s3cret")

	cfg := LoadConfig(logger.Nop())
	if cfg.Port != "9000" || cfg.AccessTokenTTL != 15*time.Minute || cfg.WriteRatePerMinute != 12 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://admin.fletar.com.ar" {
		t.Fatalf("origins: %q", cfg.CORSOrigins)
	}
	if cfg.Worker.MaxAttempts != 7 || cfg.JWTSecretKey != "s3cret" {
		t.Fatalf("worker/jwt config: %+v", cfg.Worker)
	}
}

func TestLoadConfigDefaultsSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	if cfg := LoadConfig(logger.Nop()); cfg.JWTSecretKey == "" {
		t.Fatalf("a fallback secret is required")
	}
}
