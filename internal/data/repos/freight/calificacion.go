package freight

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

type CalificacionRepo interface {
	Create(dbc dbctx.Context, c *types.Calificacion) error
	Exists(dbc dbctx.Context, cargaID, raterID uuid.UUID) (bool, error)
	ListByRated(dbc dbctx.Context, ratedID uuid.UUID, limit, offset int) ([]*types.Calificacion, int64, error)
	Summary(dbc dbctx.Context, userID uuid.UUID) (types.RatingSummary, error)
}

type calificacionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCalificacionRepo(db *gorm.DB, baseLog *logger.Logger) CalificacionRepo {
	return &calificacionRepo{db: db, log: baseLog.With("repo", "CalificacionRepo")}
}

func (r *calificacionRepo) Create(dbc dbctx.Context, c *types.Calificacion) error {
	return dbc.DB(r.db).Create(c).Error
}

func (r *calificacionRepo) Exists(dbc dbctx.Context, cargaID, raterID uuid.UUID) (bool, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.Calificacion{}).
		Where("carga_id = ? AND rater_id = ?", cargaID, raterID).
		Count(&n).Error
	return n > 0, err
}

func (r *calificacionRepo) ListByRated(dbc dbctx.Context, ratedID uuid.UUID, limit, offset int) ([]*types.Calificacion, int64, error) {
	q := dbc.DB(r.db).Model(&types.Calificacion{}).Where("rated_id = ?", ratedID)
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*types.Calificacion
	if err := q.Session(&gorm.Session{}).
		Order("created_at DESC").Order("id").
		Limit(clampLimit(limit)).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *calificacionRepo) Summary(dbc dbctx.Context, userID uuid.UUID) (types.RatingSummary, error) {
	var row struct {
		Average float64
		N       int64
	}
	err := dbc.DB(r.db).
		Model(&types.Calificacion{}).
		Select("COALESCE(AVG(score), 0) AS average, COUNT(*) AS n").
		Where("rated_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return types.RatingSummary{}, err
	}
	return types.RatingSummary{UserID: userID, Average: row.Average, Count: row.N}, nil
}
