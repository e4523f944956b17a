package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

const maxGrantMonths = 36

type Limits struct {
	MaxActiveCargas   int `json:"max_active_cargas"`
	MaxActiveCamiones int `json:"max_active_camiones"`
}

type Usage struct {
	ActiveCargas   int64 `json:"active_cargas"`
	ActiveCamiones int64 `json:"active_camiones"`
}

type PlanInfo struct {
	PriceMonthly  float64    `json:"price_monthly"`
	Currency      string     `json:"currency"`
	FreeLimits    Limits     `json:"free_limits"`
	PremiumLimits Limits     `json:"premium_limits"`
	Premium       bool       `json:"premium"`
	PremiumUntil  *time.Time `json:"premium_until,omitempty"`
	Limits        Limits     `json:"limits"`
	Usage         Usage      `json:"usage"`
}

type PremiumService interface {
	LimitsFor(ctx context.Context, u *types.User) Limits
	// CheckCargaLimit fails with limit_reached when publishing extra more
	// cargas would exceed the owner's tier limit.
	CheckCargaLimit(dbc dbctx.Context, u *types.User, extra int) error
	CheckCamionLimit(dbc dbctx.Context, u *types.User, extra int) error
	PlanInfo(ctx context.Context) (*PlanInfo, error)
	Grant(ctx context.Context, userID uuid.UUID, months int) (*types.User, error)
}

type premiumService struct {
	db         *gorm.DB
	log        *logger.Logger
	userRepo   repos.UserRepo
	cargaRepo  repos.CargaRepo
	camionRepo repos.CamionRepo
	settings   SettingsService
	notifier   Notifier
}

func NewPremiumService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, cargaRepo repos.CargaRepo, camionRepo repos.CamionRepo, settings SettingsService, notifier Notifier) PremiumService {
	return &premiumService{
		db:         db,
		log:        log.With("service", "PremiumService"),
		userRepo:   userRepo,
		cargaRepo:  cargaRepo,
		camionRepo: camionRepo,
		settings:   settings,
		notifier:   notifier,
	}
}

func (s *premiumService) freeLimits(ctx context.Context) Limits {
	return Limits{
		MaxActiveCargas:   s.settings.Int(ctx, types.SettingFreeMaxActiveCargas, 3),
		MaxActiveCamiones: s.settings.Int(ctx, types.SettingFreeMaxActiveCamiones, 2),
	}
}

func (s *premiumService) premiumLimits(ctx context.Context) Limits {
	return Limits{
		MaxActiveCargas:   s.settings.Int(ctx, types.SettingPremiumMaxActiveCargas, 100),
		MaxActiveCamiones: s.settings.Int(ctx, types.SettingPremiumMaxActiveCamiones, 50),
	}
}

func (s *premiumService) LimitsFor(ctx context.Context, u *types.User) Limits {
	if u.IsPremium(timeNow()) {
		return s.premiumLimits(ctx)
	}
	return s.freeLimits(ctx)
}

func (s *premiumService) CheckCargaLimit(dbc dbctx.Context, u *types.User, extra int) error {
	active, err := s.cargaRepo.CountActiveByOwner(dbc, u.ID)
	if err != nil {
		return fmt.Errorf("count active cargas: %w", err)
	}
	limit := s.LimitsFor(dbc.Ctx, u).MaxActiveCargas
	if active+int64(extra) > int64(limit) {
		return apierr.Forbidden("limit_reached")
	}
	return nil
}

func (s *premiumService) CheckCamionLimit(dbc dbctx.Context, u *types.User, extra int) error {
	active, err := s.camionRepo.CountActiveByCarrier(dbc, u.ID)
	if err != nil {
		return fmt.Errorf("count active camiones: %w", err)
	}
	limit := s.LimitsFor(dbc.Ctx, u).MaxActiveCamiones
	if active+int64(extra) > int64(limit) {
		return apierr.Forbidden("limit_reached")
	}
	return nil
}

func (s *premiumService) PlanInfo(ctx context.Context) (*PlanInfo, error) {
	dbc := dbctx.New(ctx)
	u, err := currentUser(dbc, s.userRepo)
	if err != nil {
		return nil, err
	}
	info := &PlanInfo{
		PriceMonthly:  s.settings.Float(ctx, types.SettingPremiumPriceMonthlyARS, 0),
		Currency:      s.settings.Get(ctx, types.SettingPremiumCurrency),
		FreeLimits:    s.freeLimits(ctx),
		PremiumLimits: s.premiumLimits(ctx),
		Premium:       u.IsPremium(timeNow()),
		PremiumUntil:  u.PremiumUntil,
	}
	info.Limits = info.FreeLimits
	if info.Premium {
		info.Limits = info.PremiumLimits
	}
	if info.Usage.ActiveCargas, err = s.cargaRepo.CountActiveByOwner(dbc, u.ID); err != nil {
		return nil, err
	}
	if info.Usage.ActiveCamiones, err = s.camionRepo.CountActiveByCarrier(dbc, u.ID); err != nil {
		return nil, err
	}
	return info, nil
}

// Grant extends PremiumUntil by months counted from max(now, current expiry).
func (s *premiumService) Grant(ctx context.Context, userID uuid.UUID, months int) (*types.User, error) {
	if months < 1 || months > maxGrantMonths {
		return nil, apierr.BadRequest("invalid_months", fmt.Sprintf("months must be between 1 and %d", maxGrantMonths))
	}
	var updated *types.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		u, err := s.userRepo.GetByID(dbc, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return apierr.NotFound("user_not_found")
		}
		until := ExtendPremium(u.PremiumUntil, timeNow(), months)
		if err := s.userRepo.UpdateFields(dbc, u.ID, map[string]interface{}{"premium_until": until}); err != nil {
			return err
		}
		u.PremiumUntil = &until
		updated = u
		_, err = s.notifier.Notify(dbc, NotificationEvent{
			Type:          EventPremiumGranted,
			UserID:        u.ID,
			EntityID:      u.ID,
			Discriminator: until.Format("20060102"),
			Data:          map[string]interface{}{"Until": until.Format("02/01/2006")},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Premium granted", "user_id", userID, "months", months, "until", updated.PremiumUntil)
	return updated, nil
}

func ExtendPremium(current *time.Time, now time.Time, months int) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.AddDate(0, months, 0)
}
