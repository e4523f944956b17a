package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fletar/fletar-backend/internal/catalog"
	types "github.com/fletar/fletar-backend/internal/domain"
	httpH "github.com/fletar/fletar-backend/internal/http/handlers"
	httpMW "github.com/fletar/fletar-backend/internal/http/middleware"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/ctxutil"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
	"github.com/fletar/fletar-backend/internal/services"
)

type stubAuth struct {
	services.AuthService
	tokens map[string]*ctxutil.RequestData
}

func (s *stubAuth) SetContextFromToken(ctx context.Context, token string) (context.Context, error) {
	rd, ok := s.tokens[token]
	if !ok {
		return ctx, apierr.New(http.StatusUnauthorized, "invalid_token", errors.New("invalid token"))
	}
	return ctxutil.WithRequestData(ctx, rd), nil
}

type stubModules struct {
	services.ModuleService
	disabled map[string]bool
}

func (s *stubModules) Require(ctx context.Context, key string) error {
	if s.disabled[key] {
		return apierr.Forbidden("module_disabled")
	}
	return nil
}

func (s *stubModules) List(ctx context.Context) ([]*types.Module, error) {
	return []*types.Module{{Key: types.ModuleCargas, Enabled: !s.disabled[types.ModuleCargas]}}, nil
}

type stubNotifications struct {
	services.NotificationService
}

func (s *stubNotifications) MarkAllRead(ctx context.Context) (int64, error) { return 0, nil }

func newTestRouter(t *testing.T, modules *stubModules) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	auth := &stubAuth{tokens: map[string]*ctxutil.RequestData{
		"user":  {UserID: uuid.New(), Role: string(types.RoleUser)},
		"other": {UserID: uuid.New(), Role: string(types.RoleUser)},
	}}
	return NewRouter(RouterConfig{
		Log:                 log,
		AuthMiddleware:      httpMW.NewAuthMiddleware(log, auth),
		Modules:             modules,
		WritesPerMin:        1,
		HealthHandler:       httpH.NewHealthHandler(nil),
		CatalogHandler:      httpH.NewCatalogHandler(catalog.Default(), modules),
		CargaHandler:        httpH.NewCargaHandler(nil, nil, nil, nil),
		NotificationHandler: httpH.NewNotificationHandler(&stubNotifications{}),
		AdminHandler:        httpH.NewAdminHandler(nil, nil),
	})
}

func call(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRouterPublicAndProtected(t *testing.T) {
	r := newTestRouter(t, &stubModules{})

	if rec := call(r, http.MethodGet, "/healthcheck", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthcheck: %d", rec.Code)
	}
	if rec := call(r, http.MethodGet, "/api/catalog", ""); rec.Code != http.StatusOK {
		t.Fatalf("catalog should be public: %d", rec.Code)
	}
	if rec := call(r, http.MethodPost, "/api/notifications/read-all", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("notifications need a token: %d", rec.Code)
	}
	if rec := call(r, http.MethodGet, "/api/admin/stats", "user"); rec.Code != http.StatusForbidden {
		t.Fatalf("admin routes need the admin role: %d", rec.Code)
	}
	if rec := call(r, http.MethodGet, "/api/catalog", ""); rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("responses should carry a request id")
	}
}

func TestRouterRateLimitsWritesPerUser(t *testing.T) {
	r := newTestRouter(t, &stubModules{})

	if rec := call(r, http.MethodPost, "/api/notifications/read-all", "user"); rec.Code != http.StatusOK {
		t.Fatalf("first write: %d %s", rec.Code, rec.Body.String())
	}
	rec := call(r, http.MethodPost, "/api/notifications/read-all", "user")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("second write within the window should be throttled: %d", rec.Code)
	}
	if rec := call(r, http.MethodPost, "/api/notifications/read-all", "other"); rec.Code != http.StatusOK {
		t.Fatalf("other users have their own bucket: %d", rec.Code)
	}
}

func TestRouterModuleGate(t *testing.T) {
	r := newTestRouter(t, &stubModules{disabled: map[string]bool{types.ModuleCargas: true}})

	rec := call(r, http.MethodGet, "/api/cargas", "user")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("disabled module should answer 403, got %d", rec.Code)
	}
}
