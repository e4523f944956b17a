package freight

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/geo"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

type CamionFilter struct {
	Province    string
	TruckType   string
	MinCapacity *float64
	AvailableOn *time.Time
	Statuses    []types.CamionStatus
	CarrierID   *uuid.UUID
	Limit       int
	Offset      int
}

type CamionRepo interface {
	Create(dbc dbctx.Context, camiones []*types.CamionDisponible) ([]*types.CamionDisponible, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CamionDisponible, error)
	List(dbc dbctx.Context, f CamionFilter) ([]*types.CamionDisponible, int64, error)
	Markers(dbc dbctx.Context, bbox geo.BBox, f CamionFilter) ([]types.Marker, error)
	InBBox(dbc dbctx.Context, bbox geo.BBox, statuses []types.CamionStatus, limit int) ([]*types.CamionDisponible, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.CamionStatus, updates map[string]interface{}) (bool, error)
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
	CountActiveByCarrier(dbc dbctx.Context, carrierID uuid.UUID) (int64, error)
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
	ExpireStale(dbc dbctx.Context, now time.Time) (int64, error)
}

type camionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCamionRepo(db *gorm.DB, baseLog *logger.Logger) CamionRepo {
	return &camionRepo{db: db, log: baseLog.With("repo", "CamionRepo")}
}

func (r *camionRepo) Create(dbc dbctx.Context, camiones []*types.CamionDisponible) ([]*types.CamionDisponible, error) {
	if len(camiones) == 0 {
		return []*types.CamionDisponible{}, nil
	}
	if err := dbc.DB(r.db).Create(&camiones).Error; err != nil {
		return nil, err
	}
	return camiones, nil
}

func (r *camionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CamionDisponible, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.CamionDisponible
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *camionRepo) filtered(q *gorm.DB, f CamionFilter) *gorm.DB {
	q = q.Model(&types.CamionDisponible{})
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.CarrierID != nil {
		q = q.Where("carrier_id = ?", *f.CarrierID)
	}
	if f.Province != "" {
		q = q.Where("origin_province = ?", f.Province)
	}
	if f.TruckType != "" {
		q = q.Where("truck_type = ?", f.TruckType)
	}
	if f.MinCapacity != nil {
		q = q.Where("capacity_kg >= ?", *f.MinCapacity)
	}
	if f.AvailableOn != nil {
		q = q.Where("available_from <= ? AND (available_to IS NULL OR available_to >= ?)", *f.AvailableOn, *f.AvailableOn)
	}
	return q
}

func (r *camionRepo) List(dbc dbctx.Context, f CamionFilter) ([]*types.CamionDisponible, int64, error) {
	q := r.filtered(dbc.DB(r.db), f)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*types.CamionDisponible
	if err := q.Session(&gorm.Session{}).
		Order("available_from ASC").Order("created_at DESC").Order("id").
		Limit(clampLimit(f.Limit)).
		Offset(f.Offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *camionRepo) Markers(dbc dbctx.Context, bbox geo.BBox, f CamionFilter) ([]types.Marker, error) {
	f.Statuses = []types.CamionStatus{types.CamionActivo}
	q := withinBBox(r.filtered(dbc.DB(r.db), f), "origin", bbox)

	var rows []struct {
		ID         uuid.UUID
		OriginLat  float64
		OriginLng  float64
		OriginCity string
		TruckType  string
	}
	if err := q.Select("id, origin_lat, origin_lng, origin_city, truck_type").
		Order("created_at DESC").
		Limit(MarkerLimit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Marker, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.Marker{
			ID:        row.ID,
			Lat:       row.OriginLat,
			Lng:       row.OriginLng,
			Title:     row.OriginCity,
			TruckType: row.TruckType,
		})
	}
	return out, nil
}

func (r *camionRepo) InBBox(dbc dbctx.Context, bbox geo.BBox, statuses []types.CamionStatus, limit int) ([]*types.CamionDisponible, error) {
	q := withinBBox(dbc.DB(r.db).Model(&types.CamionDisponible{}), "origin", bbox)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if limit <= 0 {
		limit = MarkerLimit
	}
	var out []*types.CamionDisponible
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *camionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return dbc.DB(r.db).Model(&types.CamionDisponible{}).Where("id = ?", id).Updates(updates).Error
}

func (r *camionRepo) UpdateIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.CamionStatus, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || len(updates) == 0 {
		return false, nil
	}
	res := dbc.DB(r.db).
		Model(&types.CamionDisponible{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *camionRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	return dbc.DB(r.db).Where("id = ?", id).Delete(&types.CamionDisponible{}).Error
}

func (r *camionRepo) CountActiveByCarrier(dbc dbctx.Context, carrierID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.CamionDisponible{}).
		Where("carrier_id = ? AND status IN ?", carrierID, []types.CamionStatus{types.CamionActivo, types.CamionPausado}).
		Count(&n).Error
	return n, err
}

func (r *camionRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	return countBy(dbc.DB(r.db), &types.CamionDisponible{}, "status")
}

// ExpireStale marks activo and pausado postings whose window closed as vencido.
func (r *camionRepo) ExpireStale(dbc dbctx.Context, now time.Time) (int64, error) {
	res := dbc.DB(r.db).
		Model(&types.CamionDisponible{}).
		Where("status IN ? AND available_to IS NOT NULL AND available_to < ?",
			[]types.CamionStatus{types.CamionActivo, types.CamionPausado}, now).
		Updates(map[string]interface{}{"status": types.CamionVencido, "updated_at": now})
	return res.RowsAffected, res.Error
}
