package admin

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

type ModuleRepo interface {
	List(dbc dbctx.Context) ([]*types.Module, error)
	GetByKey(dbc dbctx.Context, key string) (*types.Module, error)
	SetEnabled(dbc dbctx.Context, key string, enabled bool) (bool, error)
	SeedDefaults(dbc dbctx.Context, modules []*types.Module) (int64, error)
}

type moduleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModuleRepo(db *gorm.DB, baseLog *logger.Logger) ModuleRepo {
	return &moduleRepo{db: db, log: baseLog.With("repo", "ModuleRepo")}
}

func (r *moduleRepo) List(dbc dbctx.Context) ([]*types.Module, error) {
	var out []*types.Module
	if err := dbc.DB(r.db).Order("key").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *moduleRepo) GetByKey(dbc dbctx.Context, key string) (*types.Module, error) {
	var m types.Module
	if err := dbc.DB(r.db).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).Limit(1).Find(&m).Error; err != nil {
		return nil, err
	}
	if m.Key == "" {
		return nil, nil
	}
	return &m, nil
}

func (r *moduleRepo) SetEnabled(dbc dbctx.Context, key string, enabled bool) (bool, error) {
	res := dbc.DB(r.db).
		Model(&types.Module{}).
		Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).
		Updates(map[string]interface{}{"enabled": enabled, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

// SeedDefaults inserts missing modules and leaves existing rows untouched so
// admin toggles survive redeploys.
func (r *moduleRepo) SeedDefaults(dbc dbctx.Context, modules []*types.Module) (int64, error) {
	if len(modules) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).
		Create(&modules)
	return res.RowsAffected, res.Error
}
