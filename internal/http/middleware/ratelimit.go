package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/fletar/fletar-backend/internal/http/response"
	"github.com/fletar/fletar-backend/internal/pkg/ctxutil"
)

// keyedLimiter keeps one token bucket per caller.
type keyedLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
	rate       rate.Limit
	burst      int
	lastEvict  time.Time
	idle       time.Duration
	now        func() time.Time
}

func newKeyedLimiter(perMinute int) *keyedLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &keyedLimiter{
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
		rate:       rate.Limit(float64(perMinute) / 60.0),
		burst:      max(1, perMinute/6),
		idle:       10 * time.Minute,
		now:        time.Now,
	}
}

func (k *keyedLimiter) reserve(key string) (bool, time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.now()
	if now.Sub(k.lastEvict) > k.idle {
		k.evictLocked(now)
	}
	limiter, ok := k.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(k.rate, k.burst)
		k.limiters[key] = limiter
	}
	k.lastAccess[key] = now
	if limiter.AllowN(now, 1) {
		return true, 0
	}
	r := limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

func (k *keyedLimiter) evictLocked(now time.Time) {
	cutoff := now.Add(-k.idle)
	for key, last := range k.lastAccess {
		if last.Before(cutoff) {
			delete(k.limiters, key)
			delete(k.lastAccess, key)
		}
	}
	k.lastEvict = now
}

func (k *keyedLimiter) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

// WriteRateLimit throttles mutating requests per authenticated user, or per
// client IP for anonymous callers. Safe methods pass through.
func WriteRateLimit(perMinute int) gin.HandlerFunc {
	return rateLimit(newKeyedLimiter(perMinute))
}

func rateLimit(limiter *keyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		key := "ip:" + c.ClientIP()
		if id := ctxutil.UserID(c.Request.Context()); id != uuid.Nil {
			key = "user:" + id.String()
		}
		ok, wait := limiter.reserve(key)
		if !ok {
			secs := int(wait.Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			response.AbortError(c, http.StatusTooManyRequests, "rate_limited", errors.New("too many requests, slow down"))
			return
		}
		c.Next()
	}
}
