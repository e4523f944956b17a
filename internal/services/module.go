package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

const moduleCacheTTL = 15 * time.Second

type ModuleService interface {
	IsEnabled(ctx context.Context, key string) bool
	// Require returns a 403 module_disabled error when key is off.
	Require(ctx context.Context, key string) error
	List(ctx context.Context) ([]*types.Module, error)
	SetEnabled(ctx context.Context, key string, enabled bool) (*types.Module, error)
	Invalidate()
}

type moduleService struct {
	db         *gorm.DB
	log        *logger.Logger
	moduleRepo repos.ModuleRepo

	mu       sync.RWMutex
	states   map[string]bool
	loadedAt time.Time
}

func NewModuleService(db *gorm.DB, log *logger.Logger, moduleRepo repos.ModuleRepo) ModuleService {
	return &moduleService{
		db:         db,
		log:        log.With("service", "ModuleService"),
		moduleRepo: moduleRepo,
	}
}

func (s *moduleService) IsEnabled(ctx context.Context, key string) bool {
	states, err := s.snapshot(ctx)
	if err != nil {
		s.log.Warn("Module state unavailable; assuming enabled", "module", key, "error", err)
		return true
	}
	enabled, ok := states[key]
	if !ok {
		return true
	}
	return enabled
}

func (s *moduleService) Require(ctx context.Context, key string) error {
	if !s.IsEnabled(ctx, key) {
		return apierr.Forbidden("module_disabled")
	}
	return nil
}

func (s *moduleService) snapshot(ctx context.Context) (map[string]bool, error) {
	s.mu.RLock()
	if s.states != nil && timeNow().Sub(s.loadedAt) < moduleCacheTTL {
		states := s.states
		s.mu.RUnlock()
		return states, nil
	}
	s.mu.RUnlock()

	mods, err := s.moduleRepo.List(dbctx.New(ctx))
	if err != nil {
		return nil, err
	}
	states := make(map[string]bool, len(mods))
	for _, m := range mods {
		states[m.Key] = m.Enabled
	}
	s.mu.Lock()
	s.states = states
	s.loadedAt = timeNow()
	s.mu.Unlock()
	return states, nil
}

func (s *moduleService) List(ctx context.Context) ([]*types.Module, error) {
	return s.moduleRepo.List(dbctx.New(ctx))
}

func (s *moduleService) SetEnabled(ctx context.Context, key string, enabled bool) (*types.Module, error) {
	dbc := dbctx.New(ctx)
	ok, err := s.moduleRepo.SetEnabled(dbc, key, enabled)
	if err != nil {
		return nil, fmt.Errorf("set module %s: %w", key, err)
	}
	if !ok {
		return nil, apierr.NotFound("module_not_found")
	}
	s.Invalidate()
	s.log.Info("Module toggled", "module", key, "enabled", enabled)
	return s.moduleRepo.GetByKey(dbc, key)
}

func (s *moduleService) Invalidate() {
	s.mu.Lock()
	s.states = nil
	s.mu.Unlock()
}
