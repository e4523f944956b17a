package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/catalog"
	"github.com/fletar/fletar-backend/internal/clients/redis"
	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

const (
	settingsCacheTTL = 30 * time.Second
	settingsRedisKey = "settings:all"
)

type SettingsService interface {
	Get(ctx context.Context, key string) string
	Int(ctx context.Context, key string, def int) int
	Float(ctx context.Context, key string, def float64) float64
	// List returns every known setting with secret values masked.
	List(ctx context.Context) ([]types.SystemSetting, error)
	Upsert(ctx context.Context, in SettingInput, adminID uuid.UUID) (*types.SystemSetting, error)
}

type SettingInput struct {
	Key         string  `json:"key"`
	Value       string  `json:"value"`
	Secret      *bool   `json:"secret,omitempty"`
	Description *string `json:"description,omitempty"`
}

type settingsService struct {
	db          *gorm.DB
	log         *logger.Logger
	settingRepo repos.SettingRepo
	catalog     *catalog.Catalog
	mirror      redis.Cache

	mu       sync.RWMutex
	values   map[string]types.SystemSetting
	loadedAt time.Time
}

// NewSettingsService mirrors the settings table into redis when mirror is set.
func NewSettingsService(db *gorm.DB, log *logger.Logger, settingRepo repos.SettingRepo, cat *catalog.Catalog, mirror redis.Cache) SettingsService {
	return &settingsService{
		db:          db,
		log:         log.With("service", "SettingsService"),
		settingRepo: settingRepo,
		catalog:     cat,
		mirror:      mirror,
	}
}

func (s *settingsService) Get(ctx context.Context, key string) string {
	values, err := s.load(ctx)
	if err == nil {
		if v, ok := values[key]; ok {
			return v.Value
		}
	} else {
		s.log.Warn("Settings unavailable; using catalog default", "key", key, "error", err)
	}
	def, _ := s.catalog.SettingDefault(key)
	return def
}

func (s *settingsService) Int(ctx context.Context, key string, def int) int {
	raw := strings.TrimSpace(s.Get(ctx, key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		s.log.Warn("Setting is not an integer", "key", key, "value", raw)
		return def
	}
	return n
}

func (s *settingsService) Float(ctx context.Context, key string, def float64) float64 {
	raw := strings.TrimSpace(s.Get(ctx, key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || !finite(f) {
		s.log.Warn("Setting is not a number", "key", key, "value", raw)
		return def
	}
	return f
}

func (s *settingsService) load(ctx context.Context) (map[string]types.SystemSetting, error) {
	s.mu.RLock()
	if s.values != nil && timeNow().Sub(s.loadedAt) < settingsCacheTTL {
		values := s.values
		s.mu.RUnlock()
		return values, nil
	}
	s.mu.RUnlock()

	var rows []types.SystemSetting
	fromMirror := false
	if s.mirror != nil {
		ok, err := s.mirror.GetJSON(ctx, settingsRedisKey, &rows)
		if err != nil {
			s.log.Warn("Settings mirror read failed", "error", err)
		}
		fromMirror = ok
	}
	if !fromMirror {
		list, err := s.settingRepo.List(dbctx.New(ctx))
		if err != nil {
			return nil, err
		}
		rows = make([]types.SystemSetting, 0, len(list))
		for _, r := range list {
			rows = append(rows, *r)
		}
		if s.mirror != nil {
			if err := s.mirror.SetJSON(ctx, settingsRedisKey, rows, settingsCacheTTL); err != nil {
				s.log.Warn("Settings mirror write failed", "error", err)
			}
		}
	}

	values := make(map[string]types.SystemSetting, len(rows))
	for _, r := range rows {
		values[r.Key] = r
	}
	s.mu.Lock()
	s.values = values
	s.loadedAt = timeNow()
	s.mu.Unlock()
	return values, nil
}

func (s *settingsService) invalidate(ctx context.Context) {
	s.mu.Lock()
	s.values = nil
	s.mu.Unlock()
	if s.mirror != nil {
		if err := s.mirror.Delete(ctx, settingsRedisKey); err != nil {
			s.log.Warn("Settings mirror invalidation failed", "error", err)
		}
	}
}

func (s *settingsService) List(ctx context.Context) ([]types.SystemSetting, error) {
	values, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(values))
	out := make([]types.SystemSetting, 0, len(values)+len(s.catalog.Settings))
	for _, v := range values {
		out = append(out, v.Masked())
		seen[v.Key] = true
	}
	for _, def := range s.catalog.DefaultSettings() {
		if !seen[def.Key] {
			out = append(out, def.Masked())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *settingsService) Upsert(ctx context.Context, in SettingInput, adminID uuid.UUID) (*types.SystemSetting, error) {
	key := strings.TrimSpace(in.Key)
	if key == "" || len(key) > 128 {
		return nil, apierr.BadRequest("invalid_setting_key", "key is required")
	}
	if len(in.Value) > 4096 {
		return nil, apierr.BadRequest("invalid_setting_value", "value too long")
	}
	if err := validateSettingValue(key, in.Value); err != nil {
		return nil, err
	}

	dbc := dbctx.New(ctx)
	existing, err := s.settingRepo.Get(dbc, key)
	if err != nil {
		return nil, fmt.Errorf("load setting %s: %w", key, err)
	}
	row := &types.SystemSetting{Key: key, Value: in.Value}
	switch {
	case existing != nil:
		row.Secret = existing.Secret
		row.Description = existing.Description
	default:
		for _, def := range s.catalog.DefaultSettings() {
			if def.Key == key {
				row.Secret = def.Secret
				row.Description = def.Description
			}
		}
	}
	if in.Secret != nil {
		row.Secret = *in.Secret
	}
	if in.Description != nil {
		row.Description = strings.TrimSpace(*in.Description)
	}
	// a masked echo from the admin UI keeps the stored secret
	if row.Secret && in.Value == types.MaskedValue && existing != nil {
		row.Value = existing.Value
	}
	if adminID != uuid.Nil {
		id := adminID
		row.UpdatedBy = &id
	}
	if err := s.settingRepo.Upsert(dbc, row); err != nil {
		return nil, fmt.Errorf("upsert setting %s: %w", key, err)
	}
	s.invalidate(ctx)
	s.log.Info("Setting updated", "key", key, "secret", row.Secret)
	masked := row.Masked()
	return &masked, nil
}

func validateSettingValue(key, value string) error {
	numeric := strings.HasPrefix(key, "limits.") || key == types.SettingPremiumPriceMonthlyARS
	if !numeric {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || !finite(f) || f < 0 {
		return apierr.New(http.StatusBadRequest, "invalid_setting_value", fmt.Errorf("%s must be a non-negative number", key))
	}
	return nil
}
