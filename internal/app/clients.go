package app

import (
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fletar/fletar-backend/internal/clients/gcp"
	"github.com/fletar/fletar-backend/internal/clients/maps"
	"github.com/fletar/fletar-backend/internal/clients/redis"
	"github.com/fletar/fletar-backend/internal/clients/sendgrid"
	"github.com/fletar/fletar-backend/internal/clients/twilio"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
	"github.com/fletar/fletar-backend/internal/realtime/bus"
)

// Clients holds external integrations. Every field except the geocoder
// factory is optional and nil when its environment is not configured.
type Clients struct {
	Redis     *goredis.Client
	Cache     redis.Cache
	SSEBus    bus.Bus
	SendGrid  sendgrid.Client
	Twilio    twilio.Client
	GcpBucket gcp.BucketService
	Geocoder  func(apiKey string) (maps.Geocoder, error)
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rdb, err := redis.NewClient(log, cfg.RedisAddr)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		b, err := bus.NewRedisBus(log, rdb, cfg.RedisChannel)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		out.Redis = rdb
		out.Cache = redis.NewCache(log, rdb, "fletar:")
		out.SSEBus = b
	} else {
		log.Warn("REDIS_ADDR not set; SSE fan-out and settings mirror are local only")
	}

	// SendGrid
	if sgCfg := sendgrid.ConfigFromEnv(); sgCfg.APIKey != "" {
		c, err := sendgrid.New(log, sgCfg)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init sendgrid: %w", err)
		}
		out.SendGrid = c
	} else {
		log.Warn("SENDGRID_API_KEY not set; email notifications will be dead-lettered")
	}

	// Twilio
	if twCfg := twilio.ConfigFromEnv(); twCfg.AccountSID != "" {
		c, err := twilio.New(log, twCfg)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init twilio: %w", err)
		}
		out.Twilio = c
	} else {
		log.Warn("TWILIO_ACCOUNT_SID not set; sms notifications will be dead-lettered")
	}

	// Gcs
	bucket, err := resolveBucketService(log, gcp.BucketConfigFromEnv())
	if err != nil {
		out.Close()
		return Clients{}, err
	}
	out.GcpBucket = bucket

	// Google Maps: the key can change at runtime through system settings, so
	// the geocoding service builds clients on demand.
	out.Geocoder = func(apiKey string) (maps.Geocoder, error) {
		return maps.NewGeocoder(log, maps.Config{APIKey: apiKey})
	}
	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.GcpBucket != nil {
		_ = c.GcpBucket.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
