package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	types "github.com/fletar/fletar-backend/internal/domain"
	httpH "github.com/fletar/fletar-backend/internal/http/handlers"
	httpMW "github.com/fletar/fletar-backend/internal/http/middleware"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
	"github.com/fletar/fletar-backend/internal/services"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AuthMiddleware *httpMW.AuthMiddleware
	Modules        services.ModuleService
	CORSOrigins    []string
	WritesPerMin   int

	HealthHandler       *httpH.HealthHandler
	AuthHandler         *httpH.AuthHandler
	CatalogHandler      *httpH.CatalogHandler
	UserHandler         *httpH.UserHandler
	RealtimeHandler     *httpH.RealtimeHandler
	CargaHandler        *httpH.CargaHandler
	CamionHandler       *httpH.CamionHandler
	PostulacionHandler  *httpH.PostulacionHandler
	NotificationHandler *httpH.NotificationHandler
	AdminHandler        *httpH.AdminHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.Metrics())
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/register", cfg.AuthHandler.Register)
			api.POST("/login", cfg.AuthHandler.Login)
			api.POST("/refresh", cfg.AuthHandler.Refresh)
		}
		if cfg.CatalogHandler != nil {
			api.GET("/catalog", cfg.CatalogHandler.Get)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}
		if cfg.WritesPerMin > 0 {
			protected.Use(httpMW.WriteRateLimit(cfg.WritesPerMin))
		}

		if cfg.AuthHandler != nil {
			protected.POST("/logout", cfg.AuthHandler.Logout)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}

		// Users
		if cfg.UserHandler != nil {
			protected.GET("/me", cfg.UserHandler.GetMe)
			protected.PATCH("/me", cfg.UserHandler.UpdateMe)
			protected.POST("/me/avatar", cfg.UserHandler.UploadAvatar)
			protected.GET("/users/:id", cfg.UserHandler.GetProfile)
			protected.GET("/users/:id/calificaciones", cfg.UserHandler.ListCalificaciones)
			protected.GET("/premium", gated(cfg, types.ModulePremium), cfg.UserHandler.Premium)
		}

		// Cargas
		if h := cfg.CargaHandler; h != nil {
			cargas := protected.Group("/cargas", gated(cfg, types.ModuleCargas))
			cargas.GET("", h.List)
			cargas.POST("", h.Create)
			cargas.GET("/mine", h.ListMine)
			cargas.GET("/markers", gated(cfg, types.ModuleMapa), h.Markers)
			cargas.POST("/bulk", gated(cfg, types.ModuleBulkUpload), h.BulkUpload)
			cargas.GET("/:id", h.Get)
			cargas.PATCH("/:id", h.Update)
			cargas.DELETE("/:id", h.Delete)
			cargas.POST("/:id/pause", h.Pause)
			cargas.POST("/:id/resume", h.Resume)
			cargas.POST("/:id/cancel", h.Cancel)
			cargas.POST("/:id/complete", h.Complete)
			cargas.POST("/:id/postulaciones", gated(cfg, types.ModulePostulaciones), h.Apply)
			cargas.GET("/:id/postulaciones", gated(cfg, types.ModulePostulaciones), h.ListPostulaciones)
			cargas.POST("/:id/calificaciones", gated(cfg, types.ModuleCalificaciones), h.Rate)
			cargas.GET("/:id/matches", gated(cfg, types.ModuleMatching), h.Matches)
		}

		// Camiones disponibles
		if h := cfg.CamionHandler; h != nil {
			camiones := protected.Group("/camiones", gated(cfg, types.ModuleCamiones))
			camiones.GET("", h.List)
			camiones.POST("", h.Create)
			camiones.GET("/mine", h.ListMine)
			camiones.GET("/markers", gated(cfg, types.ModuleMapa), h.Markers)
			camiones.GET("/:id", h.Get)
			camiones.PATCH("/:id", h.Update)
			camiones.DELETE("/:id", h.Delete)
			camiones.POST("/:id/pause", h.Pause)
			camiones.POST("/:id/resume", h.Resume)
			camiones.POST("/:id/contact", h.Contact)
			camiones.GET("/:id/matches", gated(cfg, types.ModuleMatching), h.Matches)
		}

		// Postulaciones
		if h := cfg.PostulacionHandler; h != nil {
			postulaciones := protected.Group("/postulaciones", gated(cfg, types.ModulePostulaciones))
			postulaciones.GET("/mine", h.ListMine)
			postulaciones.POST("/:id/accept", h.Accept)
			postulaciones.POST("/:id/reject", h.Reject)
			postulaciones.POST("/:id/pause", h.Pause)
			postulaciones.POST("/:id/resume", h.Resume)
			postulaciones.POST("/:id/cancel", h.Cancel)
			postulaciones.GET("/:id/contact", h.Contact)
		}

		// Notifications
		if h := cfg.NotificationHandler; h != nil {
			protected.GET("/notifications", h.List)
			protected.POST("/notifications/read", h.MarkRead)
			protected.POST("/notifications/read-all", h.MarkAllRead)
		}

		// Admin
		if h := cfg.AdminHandler; h != nil {
			admin := protected.Group("/admin")
			if cfg.AuthMiddleware != nil {
				admin.Use(cfg.AuthMiddleware.RequireAdmin())
			}
			admin.GET("/users", h.ListUsers)
			admin.PATCH("/users/:id", h.UpdateUser)
			admin.POST("/users/:id/premium", h.GrantPremium)
			admin.GET("/modules", h.ListModules)
			admin.PUT("/modules/:key", h.SetModule)
			admin.GET("/settings", h.ListSettings)
			admin.PUT("/settings", h.UpsertSetting)
			admin.GET("/stats", h.Stats)
			admin.GET("/monitor/submissions", h.Submissions)
			admin.GET("/monitor/queries", h.Queries)
			admin.GET("/notifications", h.ListNotifications)
			admin.POST("/notifications/retry-dead", h.RetryDeadNotifications)
			admin.POST("/notifications/:id/retry", h.RetryNotification)
		}
	}

	return r
}

// gated is a no-op when no module service is wired.
func gated(cfg RouterConfig, key string) gin.HandlerFunc {
	if cfg.Modules == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return httpMW.RequireModule(cfg.Modules, key)
}
