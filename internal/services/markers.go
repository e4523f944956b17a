package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/fletar/fletar-backend/internal/clients/redis"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/geo"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

const markerCacheTTL = 30 * time.Second

// markerCache is a thin read-through layer over redis.Cache. A nil cache
// disables caching.
type markerCache struct {
	cache  redis.Cache
	prefix string
	log    *logger.Logger
}

func newMarkerCache(log *logger.Logger, cache redis.Cache, kind string) *markerCache {
	return &markerCache{cache: cache, prefix: "markers:" + kind + ":", log: log}
}

// key hashes the box together with the whole normalized filter, so any
// field the repo filters on yields a distinct entry. An empty key means the
// request is not cacheable.
func (m *markerCache) key(bbox geo.BBox, filter interface{}) string {
	raw, err := json.Marshal(struct {
		BBox   geo.BBox
		Filter interface{}
	}{bbox, filter})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return m.prefix + hex.EncodeToString(sum[:16])
}

func (m *markerCache) load(ctx context.Context, key string, fetch func() ([]types.Marker, error)) ([]types.Marker, error) {
	cacheable := m.cache != nil && key != ""
	if cacheable {
		var cached []types.Marker
		hit, err := m.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			m.log.Warn("Marker cache read failed", "key", key, "error", err)
		} else if hit {
			return cached, nil
		}
	}
	out, err := fetch()
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := m.cache.SetJSON(ctx, key, out, markerCacheTTL); err != nil {
			m.log.Warn("Marker cache write failed", "key", key, "error", err)
		}
	}
	return out, nil
}

func (m *markerCache) invalidate(ctx context.Context) {
	if m.cache == nil {
		return
	}
	if err := m.cache.DeletePrefix(ctx, m.prefix); err != nil {
		m.log.Warn("Marker cache invalidation failed", "prefix", m.prefix, "error", err)
	}
}

func validBBox(b geo.BBox) error {
	if !b.Valid() {
		return apierr.BadRequest("invalid_bbox", "bbox must be south,west,north,east with south < north")
	}
	return nil
}
