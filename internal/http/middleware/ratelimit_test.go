package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fletar/fletar-backend/internal/pkg/ctxutil"
)

func TestKeyedLimiterPerKeyBuckets(t *testing.T) {
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newKeyedLimiter(60)
	l.now = func() time.Time { return clock }

	for i := 0; i < l.burst; i++ {
		if ok, _ := l.reserve("user:a"); !ok {
			t.Fatalf("request %d within burst rejected", i)
		}
	}
	ok, wait := l.reserve("user:a")
	if ok || wait <= 0 || wait > time.Second {
		t.Fatalf("expected rejection with ~1s wait, got ok=%v wait=%s", ok, wait)
	}
	if ok, _ := l.reserve("user:b"); !ok {
		t.Fatalf("other users have their own bucket")
	}

	clock = clock.Add(time.Second)
	if ok, _ := l.reserve("user:a"); !ok {
		t.Fatalf("bucket should refill after a second")
	}

	clock = clock.Add(time.Hour)
	l.reserve("user:c")
	if n := l.size(); n != 1 {
		t.Fatalf("idle limiters should be evicted, have %d", n)
	}
}

func TestWriteRateLimitSkipsReadsAndKeysByUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := newKeyedLimiter(6) // burst 1
	userA := uuid.New()
	userB := uuid.New()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if raw := c.GetHeader("X-Test-User"); raw != "" {
			id := uuid.MustParse(raw)
			c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: id}))
		}
		c.Next()
	})
	r.Use(rateLimit(limiter))
	r.GET("/cargas", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/cargas", func(c *gin.Context) { c.Status(http.StatusCreated) })

	do := func(method string, user uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/cargas", nil)
		req.Header.Set("X-Test-User", user.String())
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(http.MethodPost, userA); rec.Code != http.StatusCreated {
		t.Fatalf("first write: %d", rec.Code)
	}
	rec := do(http.MethodPost, userA)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second write should be throttled, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	if rec := do(http.MethodGet, userA); rec.Code != http.StatusOK {
		t.Fatalf("reads are never throttled, got %d", rec.Code)
	}
	if rec := do(http.MethodPost, userB); rec.Code != http.StatusCreated {
		t.Fatalf("other user throttled: %d", rec.Code)
	}
}
