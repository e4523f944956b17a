package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/catalog"
	"github.com/fletar/fletar-backend/internal/clients/maps"
	"github.com/fletar/fletar-backend/internal/data/repos"
	"github.com/fletar/fletar-backend/internal/data/repos/testutil"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/observability/monitor"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/ctxutil"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
	"github.com/fletar/fletar-backend/internal/realtime"
)

type fakeGeocoder struct {
	mu      sync.Mutex
	results map[string]*maps.Result
	calls   int
}

func (f *fakeGeocoder) Geocode(ctx context.Context, query string) (*maps.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for prefix, res := range f.results {
		if strings.HasPrefix(strings.ToLower(query), prefix) {
			cp := *res
			return &cp, nil
		}
	}
	return nil, maps.ErrNoResults
}

// fakeCache stands in for the Redis JSON cache. TTLs are ignored.
type fakeCache struct {
	mu    sync.Mutex
	items map[string][]byte
	hits  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[string][]byte{}}
}

func (f *fakeCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.items[key]
	if !ok {
		return false, nil
	}
	f.hits++
	return true, json.Unmarshal(raw, dst)
}

func (f *fakeCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[key] = raw
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.items, k)
	}
	return nil
}

func (f *fakeCache) DeletePrefix(ctx context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.items {
		if strings.HasPrefix(k, prefix) {
			delete(f.items, k)
		}
	}
	return nil
}

func (f *fakeCache) hitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

type fakeEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (f *fakeEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeEmitter) sentTo(userID uuid.UUID) []realtime.SSEMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []realtime.SSEMessage
	for _, m := range f.msgs {
		if m.Channel == realtime.UserChannel(userID) {
			out = append(out, m)
		}
	}
	return out
}

type testEnv struct {
	db  *gorm.DB
	log *logger.Logger
	cat *catalog.Catalog

	userRepo         repos.UserRepo
	userTokenRepo    repos.UserTokenRepo
	cargaRepo        repos.CargaRepo
	camionRepo       repos.CamionRepo
	postulacionRepo  repos.PostulacionRepo
	calificacionRepo repos.CalificacionRepo
	notificationRepo repos.NotificationRepo
	moduleRepo       repos.ModuleRepo
	settingRepo      repos.SettingRepo

	modules     ModuleService
	settings    SettingsService
	geocoding   GeocodingService
	notifier    Notifier
	premium     PremiumService
	submissions *monitor.SubmissionMonitor
	geocoder    *fakeGeocoder
	emitter     *fakeEmitter
	cache       *fakeCache

	cargas         CargaService
	camiones       CamionService
	postulaciones  PostulacionService
	calificaciones CalificacionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	cat := catalog.Default()

	e := &testEnv{
		db:               db,
		log:              log,
		cat:              cat,
		userRepo:         repos.NewUserRepo(db, log),
		userTokenRepo:    repos.NewUserTokenRepo(db, log),
		cargaRepo:        repos.NewCargaRepo(db, log),
		camionRepo:       repos.NewCamionRepo(db, log),
		postulacionRepo:  repos.NewPostulacionRepo(db, log),
		calificacionRepo: repos.NewCalificacionRepo(db, log),
		notificationRepo: repos.NewNotificationRepo(db, log),
		moduleRepo:       repos.NewModuleRepo(db, log),
		settingRepo:      repos.NewSettingRepo(db, log),
		submissions:      monitor.NewSubmissionMonitor(50),
		emitter:          &fakeEmitter{},
		cache:            newFakeCache(),
		geocoder: &fakeGeocoder{results: map[string]*maps.Result{
			"av. corrientes": {FormattedAddress: "Av. Corrientes 1234, CABA", City: "Buenos Aires", Province: "Ciudad Autónoma de Buenos Aires", Lat: -34.6037, Lng: -58.3816, PlaceID: "corrientes"},
			"bv. oroño":      {FormattedAddress: "Bv. Oroño 100, Rosario", City: "Rosario", Province: "Santa Fe", Lat: -32.9442, Lng: -60.6505, PlaceID: "orono"},
		}},
	}
	e.modules = NewModuleService(db, log, e.moduleRepo)
	e.settings = NewSettingsService(db, log, e.settingRepo, cat, nil)
	e.geocoding = NewGeocodingService(log, e.settings, cat, "test-key", func(apiKey string) (maps.Geocoder, error) {
		return e.geocoder, nil
	})
	e.notifier = NewNotifier(log, e.userRepo, e.notificationRepo, cat)
	e.premium = NewPremiumService(db, log, e.userRepo, e.cargaRepo, e.camionRepo, e.settings, e.notifier)
	e.cargas = NewCargaService(db, log, CargaServiceDeps{
		UserRepo:    e.userRepo,
		CargaRepo:   e.cargaRepo,
		Modules:     e.modules,
		Premium:     e.premium,
		Geocoding:   e.geocoding,
		Catalog:     cat,
		Notifier:    e.notifier,
		Emitter:     e.emitter,
		Cache:       e.cache,
		Submissions: e.submissions,
	})
	e.camiones = NewCamionService(db, log, CamionServiceDeps{
		UserRepo:    e.userRepo,
		CamionRepo:  e.camionRepo,
		Modules:     e.modules,
		Premium:     e.premium,
		Geocoding:   e.geocoding,
		Catalog:     cat,
		Notifier:    e.notifier,
		Emitter:     e.emitter,
		Cache:       e.cache,
		Submissions: e.submissions,
	})
	e.postulaciones = NewPostulacionService(db, log, PostulacionServiceDeps{
		UserRepo:         e.userRepo,
		CargaRepo:        e.cargaRepo,
		CamionRepo:       e.camionRepo,
		PostulacionRepo:  e.postulacionRepo,
		CalificacionRepo: e.calificacionRepo,
		Modules:          e.modules,
		Notifier:         e.notifier,
		Emitter:          e.emitter,
		Cache:            e.cache,
		Submissions:      e.submissions,
	})
	e.calificaciones = NewCalificacionService(db, log, e.userRepo, e.cargaRepo, e.calificacionRepo, e.modules, e.notifier, e.submissions)
	return e
}

func (e *testEnv) seedUser(t *testing.T, userType types.UserType) *types.User {
	t.Helper()
	return testutil.SeedUser(t, e.db, userType)
}

func (e *testEnv) notifications(t *testing.T, userID uuid.UUID, event string) []*types.Notification {
	t.Helper()
	var out []*types.Notification
	if err := e.db.Where("user_id = ? AND event = ?", userID, event).Order("channel").Find(&out).Error; err != nil {
		t.Fatalf("load notifications: %v", err)
	}
	return out
}

func (e *testEnv) disableModule(t *testing.T, key string) {
	t.Helper()
	if _, err := e.moduleRepo.SeedDefaults(dbctx.New(context.Background()), e.cat.DefaultModules()); err != nil {
		t.Fatalf("seed modules: %v", err)
	}
	if _, err := e.modules.SetEnabled(context.Background(), key, false); err != nil {
		t.Fatalf("disable %s: %v", key, err)
	}
}

func asUser(u *types.User) context.Context {
	return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{
		UserID:   u.ID,
		Role:     string(u.Role),
		UserType: string(u.UserType),
	})
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", code)
	}
	ae, ok := apierr.As(err)
	if !ok {
		t.Fatalf("expected api error %q, got %v", code, err)
	}
	if ae.Code != code {
		t.Fatalf("expected code %q, got %q (%v)", code, ae.Code, err)
	}
}
