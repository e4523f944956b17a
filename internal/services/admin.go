package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/observability/monitor"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

type AdminUserPatch struct {
	Role     *types.Role     `json:"role"`
	UserType *types.UserType `json:"user_type"`
	Blocked  *bool           `json:"blocked"`
}

type UserPage struct {
	Items  []*types.User `json:"items"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type DashboardStats struct {
	UsersByType           map[string]int64 `json:"users_by_type"`
	CargasByStatus        map[string]int64 `json:"cargas_by_status"`
	CamionesByStatus      map[string]int64 `json:"camiones_by_status"`
	PostulacionesByStatus map[string]int64 `json:"postulaciones_by_status"`
	NotificationsByStatus map[string]int64 `json:"notifications_by_status"`
}

type SubmissionReport struct {
	Events []monitor.SubmissionEvent   `json:"events"`
	Counts map[string]map[string]int64 `json:"counts"`
}

type QueryReport struct {
	Events []monitor.QueryEvent `json:"events"`
	Stats  monitor.QueryStats   `json:"stats"`
}

type AdminService interface {
	ListUsers(ctx context.Context, f repos.UserListFilter) (*UserPage, error)
	UpdateUser(ctx context.Context, userID uuid.UUID, patch AdminUserPatch) (*types.User, error)
	GrantPremium(ctx context.Context, userID uuid.UUID, months int) (*types.User, error)
	ListModules(ctx context.Context) ([]*types.Module, error)
	SetModule(ctx context.Context, key string, enabled bool) (*types.Module, error)
	ListSettings(ctx context.Context) ([]types.SystemSetting, error)
	UpsertSetting(ctx context.Context, in SettingInput) (*types.SystemSetting, error)
	Stats(ctx context.Context) (*DashboardStats, error)
	Submissions(ctx context.Context, limit int) (*SubmissionReport, error)
	Queries(ctx context.Context, limit int) (*QueryReport, error)
}

type AdminServiceDeps struct {
	UserRepo         repos.UserRepo
	UserTokenRepo    repos.UserTokenRepo
	CargaRepo        repos.CargaRepo
	CamionRepo       repos.CamionRepo
	PostulacionRepo  repos.PostulacionRepo
	NotificationRepo repos.NotificationRepo
	Modules          ModuleService
	Settings         SettingsService
	Premium          PremiumService
	Submissions      *monitor.SubmissionMonitor
	Queries          *monitor.QueryMonitor
}

type adminService struct {
	db   *gorm.DB
	log  *logger.Logger
	deps AdminServiceDeps
}

func NewAdminService(db *gorm.DB, log *logger.Logger, deps AdminServiceDeps) AdminService {
	return &adminService{db: db, log: log.With("service", "AdminService"), deps: deps}
}

func (s *adminService) requireAdmin(ctx context.Context) (*types.User, error) {
	u, err := currentUser(dbctx.New(ctx), s.deps.UserRepo)
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin() {
		return nil, apierr.Forbidden("admin_required")
	}
	return u, nil
}

func (s *adminService) ListUsers(ctx context.Context, f repos.UserListFilter) (*UserPage, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if f.UserType != "" && !f.UserType.Valid() {
		return nil, apierr.BadRequest("invalid_user_type", "user_type must be dador or camionero")
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	items, total, err := s.deps.UserRepo.List(dbctx.New(ctx), f)
	if err != nil {
		return nil, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return &UserPage{Items: items, Total: total, Limit: limit, Offset: f.Offset}, nil
}

func (s *adminService) UpdateUser(ctx context.Context, userID uuid.UUID, patch AdminUserPatch) (*types.User, error) {
	admin, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if patch.Role != nil {
		role := types.Role(strings.ToLower(string(*patch.Role)))
		if role != types.RoleUser && role != types.RoleAdmin {
			return nil, apierr.BadRequest("invalid_role", "role must be user or admin")
		}
		if userID == admin.ID && role != types.RoleAdmin {
			return nil, apierr.BadRequest("self_demotion", "admins cannot demote themselves")
		}
		updates["role"] = role
	}
	if patch.UserType != nil {
		if !patch.UserType.Valid() {
			return nil, apierr.BadRequest("invalid_user_type", "user_type must be dador or camionero")
		}
		updates["user_type"] = *patch.UserType
	}
	if patch.Blocked != nil {
		if userID == admin.ID && *patch.Blocked {
			return nil, apierr.BadRequest("self_block", "admins cannot block themselves")
		}
		updates["blocked"] = *patch.Blocked
	}

	var out *types.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		u, err := s.deps.UserRepo.GetByID(dbc, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return apierr.NotFound("user_not_found")
		}
		if len(updates) > 0 {
			if err := s.deps.UserRepo.UpdateFields(dbc, u.ID, updates); err != nil {
				return err
			}
		}
		if patch.Blocked != nil && *patch.Blocked {
			if err := s.deps.UserTokenRepo.DeleteByUserIDs(dbc, []uuid.UUID{u.ID}); err != nil {
				return err
			}
		}
		if patch.Role != nil {
			u.Role = updates["role"].(types.Role)
		}
		if patch.UserType != nil {
			u.UserType = *patch.UserType
		}
		if patch.Blocked != nil {
			u.Blocked = *patch.Blocked
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("User updated by admin", "user_id", userID, "admin_id", admin.ID, "fields", len(updates))
	return out, nil
}

func (s *adminService) GrantPremium(ctx context.Context, userID uuid.UUID, months int) (*types.User, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.deps.Premium.Grant(ctx, userID, months)
}

func (s *adminService) ListModules(ctx context.Context) ([]*types.Module, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.deps.Modules.List(ctx)
}

func (s *adminService) SetModule(ctx context.Context, key string, enabled bool) (out *types.Module, err error) {
	admin, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.deps.Submissions.Track(monitor.KindModuleToggle, admin.ID)(&err)
	return s.deps.Modules.SetEnabled(ctx, key, enabled)
}

func (s *adminService) ListSettings(ctx context.Context) ([]types.SystemSetting, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.deps.Settings.List(ctx)
}

func (s *adminService) UpsertSetting(ctx context.Context, in SettingInput) (out *types.SystemSetting, err error) {
	admin, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.deps.Submissions.Track(monitor.KindSettingUpsert, admin.ID)(&err)
	return s.deps.Settings.Upsert(ctx, in, admin.ID)
}

// Stats runs the per-table counts concurrently.
func (s *adminService) Stats(ctx context.Context) (*DashboardStats, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	out := &DashboardStats{}
	g, gctx := errgroup.WithContext(ctx)
	dbc := dbctx.New(gctx)
	g.Go(func() (err error) {
		out.UsersByType, err = s.deps.UserRepo.CountByType(dbc)
		return wrapStat("users", err)
	})
	g.Go(func() (err error) {
		out.CargasByStatus, err = s.deps.CargaRepo.CountByStatus(dbc)
		return wrapStat("cargas", err)
	})
	g.Go(func() (err error) {
		out.CamionesByStatus, err = s.deps.CamionRepo.CountByStatus(dbc)
		return wrapStat("camiones", err)
	})
	g.Go(func() (err error) {
		out.PostulacionesByStatus, err = s.deps.PostulacionRepo.CountByStatus(dbc)
		return wrapStat("postulaciones", err)
	})
	g.Go(func() (err error) {
		out.NotificationsByStatus, err = s.deps.NotificationRepo.CountByStatus(dbc)
		return wrapStat("notifications", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func wrapStat(name string, err error) error {
	if err != nil {
		return fmt.Errorf("count %s: %w", name, err)
	}
	return nil
}

func (s *adminService) Submissions(ctx context.Context, limit int) (*SubmissionReport, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if s.deps.Submissions == nil {
		return &SubmissionReport{Events: []monitor.SubmissionEvent{}, Counts: map[string]map[string]int64{}}, nil
	}
	return &SubmissionReport{
		Events: s.deps.Submissions.Snapshot(limit),
		Counts: s.deps.Submissions.Counts(),
	}, nil
}

func (s *adminService) Queries(ctx context.Context, limit int) (*QueryReport, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if s.deps.Queries == nil {
		return &QueryReport{Events: []monitor.QueryEvent{}}, nil
	}
	return &QueryReport{
		Events: s.deps.Queries.Snapshot(limit),
		Stats:  s.deps.Queries.Stats(),
	}, nil
}
