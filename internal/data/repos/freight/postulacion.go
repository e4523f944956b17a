package freight

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

type PostulacionRepo interface {
	Create(dbc dbctx.Context, p *types.Postulacion) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Postulacion, error)
	GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Postulacion, error)
	ListByCarga(dbc dbctx.Context, cargaID uuid.UUID, statuses []types.PostulacionStatus) ([]*types.Postulacion, error)
	ListByCamionero(dbc dbctx.Context, camioneroID uuid.UUID, statuses []types.PostulacionStatus, limit, offset int) ([]*types.Postulacion, int64, error)
	ExistsLive(dbc dbctx.Context, cargaID, camioneroID uuid.UUID) (bool, error)
	Transition(dbc dbctx.Context, id uuid.UUID, from, to types.PostulacionStatus, decidedAt *time.Time) (bool, error)
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
}

type postulacionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostulacionRepo(db *gorm.DB, baseLog *logger.Logger) PostulacionRepo {
	return &postulacionRepo{db: db, log: baseLog.With("repo", "PostulacionRepo")}
}

func (r *postulacionRepo) Create(dbc dbctx.Context, p *types.Postulacion) error {
	return dbc.DB(r.db).Omit("Carga").Create(p).Error
}

func (r *postulacionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Postulacion, error) {
	return r.get(dbc.DB(r.db), id)
}

func (r *postulacionRepo) GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Postulacion, error) {
	return r.get(forUpdate(dbc.DB(r.db)), id)
}

func (r *postulacionRepo) get(q *gorm.DB, id uuid.UUID) (*types.Postulacion, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var p types.Postulacion
	if err := q.Where("id = ?", id).Limit(1).Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}

func (r *postulacionRepo) ListByCarga(dbc dbctx.Context, cargaID uuid.UUID, statuses []types.PostulacionStatus) ([]*types.Postulacion, error) {
	q := dbc.DB(r.db).Where("carga_id = ?", cargaID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var out []*types.Postulacion
	if err := q.Order("created_at ASC").Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *postulacionRepo) ListByCamionero(dbc dbctx.Context, camioneroID uuid.UUID, statuses []types.PostulacionStatus, limit, offset int) ([]*types.Postulacion, int64, error) {
	q := dbc.DB(r.db).Model(&types.Postulacion{}).Where("camionero_id = ?", camioneroID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*types.Postulacion
	if err := q.Session(&gorm.Session{}).
		Preload("Carga").
		Order("created_at DESC").Order("id").
		Limit(clampLimit(limit)).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *postulacionRepo) ExistsLive(dbc dbctx.Context, cargaID, camioneroID uuid.UUID) (bool, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.Postulacion{}).
		Where("carga_id = ? AND camionero_id = ? AND status <> ?", cargaID, camioneroID, types.PostulacionCancelada).
		Count(&n).Error
	return n > 0, err
}

// Transition moves the row from -> to only if it is still in from.
func (r *postulacionRepo) Transition(dbc dbctx.Context, id uuid.UUID, from, to types.PostulacionStatus, decidedAt *time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if decidedAt != nil {
		updates["decided_at"] = *decidedAt
	}
	res := dbc.DB(r.db).
		Model(&types.Postulacion{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *postulacionRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	return countBy(dbc.DB(r.db), &types.Postulacion{}, "status")
}
