package app

import (
	"context"
	"fmt"
	"net"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/catalog"
	"github.com/fletar/fletar-backend/internal/data/db"
	"github.com/fletar/fletar-backend/internal/http"
	"github.com/fletar/fletar-backend/internal/jobs/sweeper"
	"github.com/fletar/fletar-backend/internal/jobs/worker"
	"github.com/fletar/fletar-backend/internal/observability"
	"github.com/fletar/fletar-backend/internal/observability/monitor"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/envutil"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
	"github.com/fletar/fletar-backend/internal/realtime"
)

const serviceName = "fletar-backend"

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Catalog  *catalog.Catalog
	Clients  Clients
	Repos    Repos
	Services Services
	SSEHub   *realtime.SSEHub
	Queries  *monitor.QueryMonitor
	Worker   *worker.Worker
	Sweeper  *sweeper.Sweeper

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
	})

	pg, err := db.NewPostgresService(cfg.DB, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	theDB := pg.DB()
	queries := monitor.NewQueryMonitor(cfg.MonitorCapacity, cfg.DB.SlowThreshold)
	if err := theDB.Use(queries); err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, fmt.Errorf("register query monitor: %w", err)
	}

	clients, err := wireClients(log, cfg)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	ssehub := realtime.NewSSEHub(log)
	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, cat, reposet, clients, ssehub, queries)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(theDB, log, cat, serviceset, ssehub)
	middleware := wireMiddleware(log, serviceset)
	router := wireRouter(log, cfg, serviceset, handlerset, middleware)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Catalog:      cat,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		SSEHub:       ssehub,
		Queries:      queries,
		Worker:       wireWorker(log, cfg, reposet, clients, serviceset),
		Sweeper:      wireSweeper(log, cfg, reposet, serviceset),
		pg:           pg,
		otelShutdown: otelShutdown,
	}, nil
}

func (a *App) Migrate() error {
	a.Log.Info("Running migrations...")
	return db.AutoMigrateAll(a.DB)
}

// Seed inserts the catalog's modules and settings that are missing. Existing
// rows keep their admin-edited values.
func (a *App) Seed(ctx context.Context) error {
	dbc := dbctx.New(ctx)
	nm, err := a.Repos.Module.SeedDefaults(dbc, a.Catalog.DefaultModules())
	if err != nil {
		return fmt.Errorf("seed modules: %w", err)
	}
	ns, err := a.Repos.Setting.SeedDefaults(dbc, a.Catalog.DefaultSettings())
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	a.Services.Modules.Invalidate()
	a.Log.Info("Seeded defaults", "modules", nm, "settings", ns)
	return nil
}

// Run serves HTTP and runs the background jobs until ctx is cancelled or one
// of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	if a.Cfg.MetricsEnabled {
		observability.StartServer(gctx, a.Log, a.Cfg.MetricsAddr)
	}

	if a.Clients.SSEBus != nil {
		err := a.Clients.SSEBus.StartForwarder(gctx, func(m realtime.SSEMessage) {
			a.SSEHub.Broadcast(m)
		})
		if err != nil {
			return fmt.Errorf("start SSE forwarder: %w", err)
		}
	}

	a.Worker.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		a.Worker.Wait()
		return nil
	})
	g.Go(func() error {
		return a.Sweeper.Run(gctx)
	})
	g.Go(func() error {
		addr := net.JoinHostPort("", a.Cfg.Port)
		a.Log.Info("HTTP server listening", "addr", addr)
		return (&http.Server{Engine: a.Router}).Run(gctx, addr)
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
