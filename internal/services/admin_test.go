package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fletar/fletar-backend/internal/data/repos"
	"github.com/fletar/fletar-backend/internal/data/repos/testutil"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/observability/monitor"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
)

func (e *testEnv) adminService() AdminService {
	return NewAdminService(e.db, e.log, AdminServiceDeps{
		UserRepo:         e.userRepo,
		UserTokenRepo:    e.userTokenRepo,
		CargaRepo:        e.cargaRepo,
		CamionRepo:       e.camionRepo,
		PostulacionRepo:  e.postulacionRepo,
		NotificationRepo: e.notificationRepo,
		Modules:          e.modules,
		Settings:         e.settings,
		Premium:          e.premium,
		Submissions:      e.submissions,
		Queries:          monitor.NewQueryMonitor(10, 200*time.Millisecond),
	})
}

func (e *testEnv) seedAdmin(t *testing.T) *types.User {
	t.Helper()
	u := e.seedUser(t, types.UserTypeDador)
	if err := e.userRepo.UpdateFields(dbctx.New(context.Background()), u.ID, map[string]interface{}{"role": types.RoleAdmin}); err != nil {
		t.Fatalf("promote admin: %v", err)
	}
	u.Role = types.RoleAdmin
	return u
}

func TestAdminRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminService()
	user := env.seedUser(t, types.UserTypeDador)

	_, err := admin.Stats(asUser(user))
	wantCode(t, err, "admin_required")
	_, err = admin.ListUsers(asUser(user), repos.UserListFilter{})
	wantCode(t, err, "admin_required")
	_, err = admin.SetModule(asUser(user), types.ModuleCargas, false)
	wantCode(t, err, "admin_required")
}

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminService()
	root := env.seedAdmin(t)
	dador := env.seedUser(t, types.UserTypeDador)
	carrier := env.seedUser(t, types.UserTypeCamionero)
	testutil.SeedCarga(t, env.db, dador.ID)
	testutil.SeedCarga(t, env.db, dador.ID, func(c *types.Carga) { c.Status = types.CargaPausada })
	testutil.SeedCamion(t, env.db, carrier.ID)

	stats, err := admin.Stats(asUser(root))
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.UsersByType["dador"] != 2 || stats.UsersByType["camionero"] != 1 {
		t.Fatalf("unexpected user counts: %v", stats.UsersByType)
	}
	if stats.CargasByStatus["disponible"] != 1 || stats.CargasByStatus["pausada"] != 1 {
		t.Fatalf("unexpected carga counts: %v", stats.CargasByStatus)
	}
	if stats.CamionesByStatus["activo"] != 1 {
		t.Fatalf("unexpected camion counts: %v", stats.CamionesByStatus)
	}
}

func TestAdminUpdateUser(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminService()
	root := env.seedAdmin(t)
	target := env.seedUser(t, types.UserTypeCamionero)
	dbc := dbctx.New(context.Background())

	if _, err := env.userTokenRepo.Create(dbc, []*types.UserToken{{
		UserID:       target.ID,
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		ExpiresAt:    time.Now().Add(time.Hour),
	}}); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	blocked := true
	u, err := admin.UpdateUser(asUser(root), target.ID, AdminUserPatch{Blocked: &blocked})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if !u.Blocked {
		t.Fatalf("user should be blocked")
	}
	var n int64
	if err := env.db.Model(&types.UserToken{}).Where("user_id = ?", target.ID).Count(&n).Error; err != nil {
		t.Fatalf("count tokens: %v", err)
	}
	if n != 0 {
		t.Fatalf("blocking should revoke sessions, %d tokens left", n)
	}

	_, err = admin.UpdateUser(asUser(root), root.ID, AdminUserPatch{Blocked: &blocked})
	wantCode(t, err, "self_block")

	role := types.RoleUser
	_, err = admin.UpdateUser(asUser(root), root.ID, AdminUserPatch{Role: &role})
	wantCode(t, err, "self_demotion")

	bogus := types.Role("owner")
	_, err = admin.UpdateUser(asUser(root), target.ID, AdminUserPatch{Role: &bogus})
	wantCode(t, err, "invalid_role")

	_, err = admin.UpdateUser(asUser(root), uuid.New(), AdminUserPatch{Blocked: &blocked})
	wantCode(t, err, "user_not_found")

	page, err := admin.ListUsers(asUser(root), repos.UserListFilter{UserType: types.UserTypeCamionero})
	if err != nil || page.Total != 1 || page.Items[0].ID != target.ID {
		t.Fatalf("ListUsers: %v %+v", err, page)
	}
}

func TestAdminSettingsDriveLimits(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminService()
	root := env.seedAdmin(t)
	dador := env.seedUser(t, types.UserTypeDador)

	_, err := admin.UpsertSetting(asUser(root), SettingInput{Key: types.SettingFreeMaxActiveCargas, Value: "uno"})
	wantCode(t, err, "invalid_setting_value")

	if _, err := admin.UpsertSetting(asUser(root), SettingInput{Key: types.SettingFreeMaxActiveCargas, Value: "1"}); err != nil {
		t.Fatalf("UpsertSetting: %v", err)
	}
	if _, err := env.cargas.Create(asUser(dador), validCargaInput()); err != nil {
		t.Fatalf("first carga: %v", err)
	}
	_, err = env.cargas.Create(asUser(dador), validCargaInput())
	wantCode(t, err, "limit_reached")

	if _, err := admin.UpsertSetting(asUser(root), SettingInput{Key: types.SettingGoogleMapsAPIKey, Value: "AIza-secret"}); err != nil {
		t.Fatalf("UpsertSetting secret: %v", err)
	}
	settings, err := admin.ListSettings(asUser(root))
	if err != nil {
		t.Fatalf("ListSettings: %v", err)
	}
	for _, s := range settings {
		if s.Key == types.SettingGoogleMapsAPIKey && s.Value != types.MaskedValue {
			t.Fatalf("secret setting leaked: %q", s.Value)
		}
	}

	report, err := admin.Submissions(asUser(root), 10)
	if err != nil {
		t.Fatalf("Submissions: %v", err)
	}
	if report.Counts[monitor.KindSettingUpsert][monitor.StatusOK] != 2 || report.Counts[monitor.KindSettingUpsert][monitor.StatusError] != 1 {
		t.Fatalf("unexpected submission counts: %v", report.Counts)
	}
}

func TestAdminModules(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminService()
	root := env.seedAdmin(t)
	if _, err := env.moduleRepo.SeedDefaults(dbctx.New(context.Background()), env.cat.DefaultModules()); err != nil {
		t.Fatalf("seed modules: %v", err)
	}

	m, err := admin.SetModule(asUser(root), types.ModuleMatching, false)
	if err != nil || m.Enabled {
		t.Fatalf("SetModule: %v %+v", err, m)
	}
	if env.modules.IsEnabled(context.Background(), types.ModuleMatching) {
		t.Fatalf("matching should be disabled")
	}
	_, err = admin.SetModule(asUser(root), "teleport", true)
	wantCode(t, err, "module_not_found")

	mods, err := admin.ListModules(asUser(root))
	if err != nil || len(mods) != len(env.cat.DefaultModules()) {
		t.Fatalf("ListModules: %v %d", err, len(mods))
	}
}
