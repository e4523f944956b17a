package admin

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

type SettingRepo interface {
	List(dbc dbctx.Context) ([]*types.SystemSetting, error)
	Get(dbc dbctx.Context, key string) (*types.SystemSetting, error)
	Upsert(dbc dbctx.Context, s *types.SystemSetting) error
	SeedDefaults(dbc dbctx.Context, settings []*types.SystemSetting) (int64, error)
}

type settingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSettingRepo(db *gorm.DB, baseLog *logger.Logger) SettingRepo {
	return &settingRepo{db: db, log: baseLog.With("repo", "SettingRepo")}
}

func (r *settingRepo) List(dbc dbctx.Context) ([]*types.SystemSetting, error) {
	var out []*types.SystemSetting
	if err := dbc.DB(r.db).Order("key").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *settingRepo) Get(dbc dbctx.Context, key string) (*types.SystemSetting, error) {
	var s types.SystemSetting
	if err := dbc.DB(r.db).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).Limit(1).Find(&s).Error; err != nil {
		return nil, err
	}
	if s.Key == "" {
		return nil, nil
	}
	return &s, nil
}

func (r *settingRepo) Upsert(dbc dbctx.Context, s *types.SystemSetting) error {
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "secret", "description", "updated_by", "updated_at"}),
		}).
		Create(s).Error
}

func (r *settingRepo) SeedDefaults(dbc dbctx.Context, settings []*types.SystemSetting) (int64, error) {
	if len(settings) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).
		Create(&settings)
	return res.RowsAffected, res.Error
}
