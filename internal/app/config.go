package app

import (
	"strings"
	"time"

	"github.com/fletar/fletar-backend/internal/data/db"
	"github.com/fletar/fletar-backend/internal/jobs/sweeper"
	"github.com/fletar/fletar-backend/internal/jobs/worker"
	"github.com/fletar/fletar-backend/internal/observability"
	"github.com/fletar/fletar-backend/internal/pkg/envutil"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

type Config struct {
	Port            string
	Environment     string
	JWTSecretKey    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	DB db.Config

	RedisAddr    string
	RedisChannel string

	GoogleMapsAPIKey string
	CatalogPath      string
	AvatarColorsPath string
	AvatarFontPath   string

	CORSOrigins        []string
	WriteRatePerMinute int
	MonitorCapacity    int

	MetricsEnabled bool
	MetricsAddr    string

	Worker        worker.Config
	SweepInterval time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:            envutil.String("PORT", "8080"),
		Environment:     envutil.String("APP_ENV", "development"),
		JWTSecretKey:    envutil.String("JWT_SECRET_KEY", ""),
		AccessTokenTTL:  time.Duration(envutil.Int("ACCESS_TOKEN_TTL", 3600)) * time.Second,
		RefreshTokenTTL: time.Duration(envutil.Int("REFRESH_TOKEN_TTL", 30*86400)) * time.Second,

		DB: db.ConfigFromEnv(),

		RedisAddr:    envutil.String("REDIS_ADDR", ""),
		RedisChannel: envutil.String("REDIS_CHANNEL", "fletar:sse"),

		GoogleMapsAPIKey: envutil.String("GOOGLE_MAPS_API_KEY", ""),
		CatalogPath:      envutil.String("CATALOG_PATH", ""),
		AvatarColorsPath: envutil.String("AVATAR_COLORS_PATH", ""),
		AvatarFontPath:   envutil.String("AVATAR_FONT_PATH", ""),

		CORSOrigins:        splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		WriteRatePerMinute: envutil.Int("WRITE_RATE_PER_MINUTE", 60),
		MonitorCapacity:    envutil.Int("MONITOR_CAPACITY", 500),

		MetricsEnabled: observability.Enabled(),
		MetricsAddr:    envutil.String("METRICS_ADDR", ":9090"),

		Worker:        worker.ConfigFromEnv(),
		SweepInterval: sweeper.IntervalFromEnv(),
	}
	if cfg.JWTSecretKey == "" {
		cfg.JWTSecretKey = "defaultsecret"
		log.Warn("JWT_SECRET_KEY not set; using an insecure default")
	}
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
