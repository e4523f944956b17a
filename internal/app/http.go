package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/catalog"
	"github.com/fletar/fletar-backend/internal/http"
	httpH "github.com/fletar/fletar-backend/internal/http/handlers"
	httpMW "github.com/fletar/fletar-backend/internal/http/middleware"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
	"github.com/fletar/fletar-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health       *httpH.HealthHandler
	Auth         *httpH.AuthHandler
	Catalog      *httpH.CatalogHandler
	User         *httpH.UserHandler
	Realtime     *httpH.RealtimeHandler
	Carga        *httpH.CargaHandler
	Camion       *httpH.CamionHandler
	Postulacion  *httpH.PostulacionHandler
	Notification *httpH.NotificationHandler
	Admin        *httpH.AdminHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, cat *catalog.Catalog, s Services, sseHub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:       httpH.NewHealthHandler(db),
		Auth:         httpH.NewAuthHandler(s.Auth),
		Catalog:      httpH.NewCatalogHandler(cat, s.Modules),
		User:         httpH.NewUserHandler(s.User, s.Calificacion, s.Premium),
		Realtime:     httpH.NewRealtimeHandler(log, sseHub),
		Carga:        httpH.NewCargaHandler(s.Cargas, s.Postulaciones, s.Calificacion, s.Matching),
		Camion:       httpH.NewCamionHandler(s.Camiones, s.Matching),
		Postulacion:  httpH.NewPostulacionHandler(s.Postulaciones),
		Notification: httpH.NewNotificationHandler(s.Notifications),
		Admin:        httpH.NewAdminHandler(s.Admin, s.Notifications),
	}
}

func wireMiddleware(log *logger.Logger, s Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, s.Auth),
	}
}

func wireRouter(log *logger.Logger, cfg Config, s Services, handlers Handlers, middleware Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:                 log,
		ServiceName:         serviceName,
		AuthMiddleware:      middleware.Auth,
		Modules:             s.Modules,
		CORSOrigins:         cfg.CORSOrigins,
		WritesPerMin:        cfg.WriteRatePerMinute,
		HealthHandler:       handlers.Health,
		AuthHandler:         handlers.Auth,
		CatalogHandler:      handlers.Catalog,
		UserHandler:         handlers.User,
		RealtimeHandler:     handlers.Realtime,
		CargaHandler:        handlers.Carga,
		CamionHandler:       handlers.Camion,
		PostulacionHandler:  handlers.Postulacion,
		NotificationHandler: handlers.Notification,
		AdminHandler:        handlers.Admin,
	})
}
