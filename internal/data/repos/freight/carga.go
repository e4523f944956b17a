package freight

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/geo"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

const (
	SortRecent = "recent"
	SortRate   = "rate"
	SortPickup = "pickup"
)

type CargaFilter struct {
	OriginProvince      string
	DestinationProvince string
	TruckType           string
	MinRate             *float64
	MaxRate             *float64
	PickupFrom          *time.Time
	PickupTo            *time.Time
	Statuses            []types.CargaStatus
	OwnerID             *uuid.UUID
	Query               string
	Sort                string
	Limit               int
	Offset              int
}

type CargaRepo interface {
	Create(dbc dbctx.Context, cargas []*types.Carga) ([]*types.Carga, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Carga, error)
	GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Carga, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Carga, error)
	List(dbc dbctx.Context, f CargaFilter) ([]*types.Carga, int64, error)
	Markers(dbc dbctx.Context, bbox geo.BBox, f CargaFilter) ([]types.Marker, error)
	InBBox(dbc dbctx.Context, bbox geo.BBox, statuses []types.CargaStatus, limit int) ([]*types.Carga, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.CargaStatus, updates map[string]interface{}) (bool, error)
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
	CountActiveByOwner(dbc dbctx.Context, ownerID uuid.UUID) (int64, error)
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
}

type cargaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCargaRepo(db *gorm.DB, baseLog *logger.Logger) CargaRepo {
	return &cargaRepo{db: db, log: baseLog.With("repo", "CargaRepo")}
}

func (r *cargaRepo) Create(dbc dbctx.Context, cargas []*types.Carga) ([]*types.Carga, error) {
	if len(cargas) == 0 {
		return []*types.Carga{}, nil
	}
	if err := dbc.DB(r.db).Create(&cargas).Error; err != nil {
		return nil, err
	}
	return cargas, nil
}

func (r *cargaRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Carga, error) {
	return r.get(dbc.DB(r.db), id)
}

func (r *cargaRepo) GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Carga, error) {
	return r.get(forUpdate(dbc.DB(r.db)), id)
}

func (r *cargaRepo) get(q *gorm.DB, id uuid.UUID) (*types.Carga, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Carga
	if err := q.Where("id = ?", id).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *cargaRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Carga, error) {
	var out []*types.Carga
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *cargaRepo) filtered(q *gorm.DB, f CargaFilter) *gorm.DB {
	q = q.Model(&types.Carga{})
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.OwnerID != nil {
		q = q.Where("owner_id = ?", *f.OwnerID)
	}
	if f.OriginProvince != "" {
		q = q.Where("origin_province = ?", f.OriginProvince)
	}
	if f.DestinationProvince != "" {
		q = q.Where("destination_province = ?", f.DestinationProvince)
	}
	if f.TruckType != "" {
		q = q.Where("required_truck_type = ?", f.TruckType)
	}
	if f.MinRate != nil {
		q = q.Where("rate_amount >= ?", *f.MinRate)
	}
	if f.MaxRate != nil {
		q = q.Where("rate_amount <= ?", *f.MaxRate)
	}
	if f.PickupFrom != nil {
		q = q.Where("pickup_date >= ?", *f.PickupFrom)
	}
	if f.PickupTo != nil {
		q = q.Where("pickup_date <= ?", *f.PickupTo)
	}
	if s := strings.ToLower(strings.TrimSpace(f.Query)); s != "" {
		like := "%" + s + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(origin_city) LIKE ? OR LOWER(destination_city) LIKE ?)", like, like, like)
	}
	return q
}

func (r *cargaRepo) List(dbc dbctx.Context, f CargaFilter) ([]*types.Carga, int64, error) {
	q := r.filtered(dbc.DB(r.db), f)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q = q.Session(&gorm.Session{})
	switch f.Sort {
	case SortRate:
		q = q.Order("rate_amount DESC")
	case SortPickup:
		q = q.Order("pickup_date ASC")
	}
	var out []*types.Carga
	if err := q.Order("created_at DESC").Order("id").
		Limit(clampLimit(f.Limit)).
		Offset(f.Offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *cargaRepo) Markers(dbc dbctx.Context, bbox geo.BBox, f CargaFilter) ([]types.Marker, error) {
	f.Statuses = []types.CargaStatus{types.CargaDisponible}
	q := withinBBox(r.filtered(dbc.DB(r.db), f), "origin", bbox)

	var rows []struct {
		ID                uuid.UUID
		OriginLat         float64
		OriginLng         float64
		Title             string
		RateAmount        float64
		RateCurrency      string
		RequiredTruckType string
	}
	if err := q.Select("id, origin_lat, origin_lng, title, rate_amount, rate_currency, required_truck_type").
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
			Title:     row.Title,
			Rate:      row.RateAmount,
			Currency:  types.Currency(row.RateCurrency),
			TruckType: row.RequiredTruckType,
		})
	}
	return out, nil
}

func (r *cargaRepo) InBBox(dbc dbctx.Context, bbox geo.BBox, statuses []types.CargaStatus, limit int) ([]*types.Carga, error) {
	q := withinBBox(dbc.DB(r.db).Model(&types.Carga{}), "origin", bbox)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if limit <= 0 {
		limit = MarkerLimit
	}
	var out []*types.Carga
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *cargaRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return dbc.DB(r.db).Model(&types.Carga{}).Where("id = ?", id).Updates(updates).Error
}

// UpdateIfStatus applies updates only while the row is in one of the
// allowed statuses. It reports whether a row changed.
func (r *cargaRepo) UpdateIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.CargaStatus, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || len(updates) == 0 {
		return false, nil
	}
	res := dbc.DB(r.db).
		Model(&types.Carga{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *cargaRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	return dbc.DB(r.db).Where("id = ?", id).Delete(&types.Carga{}).Error
}

func (r *cargaRepo) CountActiveByOwner(dbc dbctx.Context, ownerID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.Carga{}).
		Where("owner_id = ? AND status IN ?", ownerID, []types.CargaStatus{types.CargaDisponible, types.CargaPausada}).
		Count(&n).Error
	return n, err
}

func (r *cargaRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	return countBy(dbc.DB(r.db), &types.Carga{}, "status")
}
