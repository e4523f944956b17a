package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/catalog"
	"github.com/fletar/fletar-backend/internal/observability/monitor"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
	"github.com/fletar/fletar-backend/internal/realtime"
	"github.com/fletar/fletar-backend/internal/services"
)

type Services struct {
	Auth          services.AuthService
	User          services.UserService
	Avatar        services.AvatarService
	Modules       services.ModuleService
	Settings      services.SettingsService
	Geocoding     services.GeocodingService
	Notifier      services.Notifier
	Notifications services.NotificationService
	Premium       services.PremiumService
	Cargas        services.CargaService
	Camiones      services.CamionService
	Postulaciones services.PostulacionService
	Calificacion  services.CalificacionService
	Matching      services.MatchingService
	Admin         services.AdminService

	Emitter     realtime.Emitter
	Submissions *monitor.SubmissionMonitor
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	cat *catalog.Catalog,
	r Repos,
	clients Clients,
	hub *realtime.SSEHub,
	queries *monitor.QueryMonitor,
) (Services, error) {
	log.Info("Wiring services...")
	var s Services

	if clients.GcpBucket != nil {
		avatar, err := services.NewAvatarService(log, clients.GcpBucket, services.AvatarConfig{
			ColorsJSONPath: cfg.AvatarColorsPath,
			FontPath:       cfg.AvatarFontPath,
		})
		if err != nil {
			return Services{}, fmt.Errorf("init avatar service: %w", err)
		}
		s.Avatar = avatar
	}

	s.Submissions = monitor.NewSubmissionMonitor(cfg.MonitorCapacity)
	s.Submissions.Subscribe(monitor.LogObserver(log))

	s.Emitter = realtime.NewEmitter(log, hub, clients.SSEBus)

	s.Auth = services.NewAuthService(db, log, r.User, r.UserToken, s.Avatar, cfg.JWTSecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	s.User = services.NewUserService(db, log, r.User, r.Calificacion, s.Avatar)
	s.Modules = services.NewModuleService(db, log, r.Module)
	s.Settings = services.NewSettingsService(db, log, r.Setting, cat, clients.Cache)
	s.Geocoding = services.NewGeocodingService(log, s.Settings, cat, cfg.GoogleMapsAPIKey, clients.Geocoder)
	s.Notifier = services.NewNotifier(log, r.User, r.Notification, cat)
	s.Notifications = services.NewNotificationService(log, r.Notification)
	s.Premium = services.NewPremiumService(db, log, r.User, r.Carga, r.Camion, s.Settings, s.Notifier)

	s.Cargas = services.NewCargaService(db, log, services.CargaServiceDeps{
		UserRepo:    r.User,
		CargaRepo:   r.Carga,
		Modules:     s.Modules,
		Premium:     s.Premium,
		Geocoding:   s.Geocoding,
		Catalog:     cat,
		Notifier:    s.Notifier,
		Emitter:     s.Emitter,
		Cache:       clients.Cache,
		Submissions: s.Submissions,
	})
	s.Camiones = services.NewCamionService(db, log, services.CamionServiceDeps{
		UserRepo:    r.User,
		CamionRepo:  r.Camion,
		Modules:     s.Modules,
		Premium:     s.Premium,
		Geocoding:   s.Geocoding,
		Catalog:     cat,
		Notifier:    s.Notifier,
		Emitter:     s.Emitter,
		Cache:       clients.Cache,
		Submissions: s.Submissions,
	})
	s.Postulaciones = services.NewPostulacionService(db, log, services.PostulacionServiceDeps{
		UserRepo:         r.User,
		CargaRepo:        r.Carga,
		CamionRepo:       r.Camion,
		PostulacionRepo:  r.Postulacion,
		CalificacionRepo: r.Calificacion,
		Modules:          s.Modules,
		Notifier:         s.Notifier,
		Emitter:          s.Emitter,
		Cache:            clients.Cache,
		Submissions:      s.Submissions,
	})
	s.Calificacion = services.NewCalificacionService(db, log, r.User, r.Carga, r.Calificacion, s.Modules, s.Notifier, s.Submissions)
	s.Matching = services.NewMatchingService(log, r.User, r.Carga, r.Camion, s.Modules, cat)
	s.Admin = services.NewAdminService(db, log, services.AdminServiceDeps{
		UserRepo:         r.User,
		UserTokenRepo:    r.UserToken,
		CargaRepo:        r.Carga,
		CamionRepo:       r.Camion,
		PostulacionRepo:  r.Postulacion,
		NotificationRepo: r.Notification,
		Modules:          s.Modules,
		Settings:         s.Settings,
		Premium:          s.Premium,
		Submissions:      s.Submissions,
		Queries:          queries,
	})
	return s, nil
}
