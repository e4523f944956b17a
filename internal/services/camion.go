package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/catalog"
	"github.com/fletar/fletar-backend/internal/clients/redis"
	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/observability/monitor"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/geo"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
	"github.com/fletar/fletar-backend/internal/realtime"
)

type CamionInput struct {
	TruckType             string         `json:"truck_type"`
	CapacityKg            float64        `json:"capacity_kg"`
	Plate                 string         `json:"plate"`
	Origin                types.Location `json:"origin"`
	ServiceRadiusKm       float64        `json:"service_radius_km"`
	PreferredDestProvince string         `json:"preferred_dest_province"`
	AvailableFrom         time.Time      `json:"available_from"`
	AvailableTo           *time.Time     `json:"available_to"`
	Notes                 string         `json:"notes"`
}

type CamionPatch struct {
	TruckType             *string         `json:"truck_type"`
	CapacityKg            *float64        `json:"capacity_kg"`
	Plate                 *string         `json:"plate"`
	Origin                *types.Location `json:"origin"`
	ServiceRadiusKm       *float64        `json:"service_radius_km"`
	PreferredDestProvince *string         `json:"preferred_dest_province"`
	AvailableFrom         *time.Time      `json:"available_from"`
	AvailableTo           *time.Time      `json:"available_to"`
	Notes                 *string         `json:"notes"`
}

type CamionPage struct {
	Items  []*types.CamionDisponible `json:"items"`
	Total  int64                     `json:"total"`
	Limit  int                       `json:"limit"`
	Offset int                       `json:"offset"`
}

type CamionService interface {
	Create(ctx context.Context, in CamionInput) (*types.CamionDisponible, error)
	Get(ctx context.Context, id uuid.UUID) (*types.CamionDisponible, error)
	List(ctx context.Context, f repos.CamionFilter) (*CamionPage, error)
	ListMine(ctx context.Context, f repos.CamionFilter) (*CamionPage, error)
	Markers(ctx context.Context, bbox geo.BBox, f repos.CamionFilter) ([]types.Marker, error)
	Update(ctx context.Context, id uuid.UUID, patch CamionPatch) (*types.CamionDisponible, error)
	Pause(ctx context.Context, id uuid.UUID) (*types.CamionDisponible, error)
	Resume(ctx context.Context, id uuid.UUID) (*types.CamionDisponible, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Contact reveals the carrier's contact data to a dador and lets the
	// carrier know who asked.
	Contact(ctx context.Context, id uuid.UUID) (*types.Contact, error)
	ExpireStale(ctx context.Context) (int64, error)
}

type CamionServiceDeps struct {
	UserRepo    repos.UserRepo
	CamionRepo  repos.CamionRepo
	Modules     ModuleService
	Premium     PremiumService
	Geocoding   GeocodingService
	Catalog     *catalog.Catalog
	Notifier    Notifier
	Emitter     realtime.Emitter
	Cache       redis.Cache
	Submissions *monitor.SubmissionMonitor
}

type camionService struct {
	db          *gorm.DB
	log         *logger.Logger
	userRepo    repos.UserRepo
	camionRepo  repos.CamionRepo
	modules     ModuleService
	premium     PremiumService
	geocoding   GeocodingService
	catalog     *catalog.Catalog
	notifier    Notifier
	emitter     realtime.Emitter
	markers     *markerCache
	submissions *monitor.SubmissionMonitor
}

func NewCamionService(db *gorm.DB, baseLog *logger.Logger, deps CamionServiceDeps) CamionService {
	log := baseLog.With("service", "CamionService")
	return &camionService{
		db:          db,
		log:         log,
		userRepo:    deps.UserRepo,
		camionRepo:  deps.CamionRepo,
		modules:     deps.Modules,
		premium:     deps.Premium,
		geocoding:   deps.Geocoding,
		catalog:     deps.Catalog,
		notifier:    deps.Notifier,
		emitter:     deps.Emitter,
		markers:     newMarkerCache(log, deps.Cache, "camiones"),
		submissions: deps.Submissions,
	}
}

func validateCamion(cat *catalog.Catalog, in *CamionInput, today time.Time) error {
	in.TruckType = strings.ToLower(strings.TrimSpace(in.TruckType))
	in.Plate = strings.ToUpper(trimTo(in.Plate, 16))
	in.Notes = trimTo(in.Notes, 2000)
	if !cat.TruckTypeValid(in.TruckType) {
		return apierr.BadRequest("invalid_truck_type", "unknown truck type "+in.TruckType)
	}
	if !finite(in.CapacityKg, in.Origin.Lat, in.Origin.Lng) {
		return apierr.BadRequest("invalid_number", "numeric fields must be finite")
	}
	if in.CapacityKg < 0 {
		return apierr.BadRequest("invalid_capacity", "capacity_kg cannot be negative")
	}
	if in.ServiceRadiusKm < types.MinServiceRadiusKm || in.ServiceRadiusKm > types.MaxServiceRadiusKm {
		return apierr.BadRequest("invalid_radius", fmt.Sprintf("service_radius_km must be between %d and %d", types.MinServiceRadiusKm, types.MaxServiceRadiusKm))
	}
	if p := strings.TrimSpace(in.PreferredDestProvince); p != "" {
		prov, ok := cat.Province(p)
		if !ok {
			return apierr.BadRequest("invalid_province", "unknown province "+p)
		}
		in.PreferredDestProvince = prov
	} else {
		in.PreferredDestProvince = ""
	}
	if in.AvailableFrom.IsZero() {
		in.AvailableFrom = today
	}
	in.AvailableFrom = startOfDay(in.AvailableFrom)
	if in.AvailableTo != nil {
		to := startOfDay(*in.AvailableTo)
		if to.Before(in.AvailableFrom) {
			return apierr.BadRequest("invalid_window", "available_to must not precede available_from")
		}
		if to.Before(startOfDay(today)) {
			return apierr.BadRequest("invalid_window", "available_to is in the past")
		}
		in.AvailableTo = &to
	}
	return nil
}

func (in CamionInput) toCamion(carrierID uuid.UUID) *types.CamionDisponible {
	return &types.CamionDisponible{
		ID:                    uuid.New(),
		CarrierID:             carrierID,
		TruckType:             in.TruckType,
		CapacityKg:            in.CapacityKg,
		Plate:                 in.Plate,
		Origin:                in.Origin,
		ServiceRadiusKm:       in.ServiceRadiusKm,
		PreferredDestProvince: in.PreferredDestProvince,
		AvailableFrom:         in.AvailableFrom,
		AvailableTo:           in.AvailableTo,
		Notes:                 in.Notes,
		Status:                types.CamionActivo,
	}
}

func (s *camionService) requireCamionero(dbc dbctx.Context) (*types.User, error) {
	u, err := currentUser(dbc, s.userRepo)
	if err != nil {
		return nil, err
	}
	if err := requireUserType(u, types.UserTypeCamionero); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *camionService) Create(ctx context.Context, in CamionInput) (out *types.CamionDisponible, err error) {
	dbc := dbctx.New(ctx)
	u, err := s.requireCamionero(dbc)
	if err != nil {
		return nil, err
	}
	defer s.submissions.Track(monitor.KindCamionCreate, u.ID)(&err)

	if err := s.modules.Require(ctx, types.ModuleCamiones); err != nil {
		return nil, err
	}
	if err := validateCamion(s.catalog, &in, timeNow()); err != nil {
		return nil, err
	}
	if err := s.premium.CheckCamionLimit(dbc, u, 1); err != nil {
		return nil, err
	}
	if err := s.geocoding.Resolve(ctx, &in.Origin); err != nil {
		return nil, err
	}
	created, err := s.camionRepo.Create(dbc, []*types.CamionDisponible{in.toCamion(u.ID)})
	if err != nil {
		return nil, fmt.Errorf("create camion: %w", err)
	}
	s.markers.invalidate(ctx)
	s.log.Info("Camion published", "camion_id", created[0].ID, "carrier_id", u.ID)
	return created[0], nil
}

func (s *camionService) Get(ctx context.Context, id uuid.UUID) (*types.CamionDisponible, error) {
	dbc := dbctx.New(ctx)
	if _, err := currentUser(dbc, s.userRepo); err != nil {
		return nil, err
	}
	c, err := s.camionRepo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound("camion_not_found")
	}
	return c, nil
}

func (s *camionService) normalizeFilter(f *repos.CamionFilter) error {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return apierr.BadRequest("invalid_status", "unknown status "+string(st))
		}
	}
	if f.Province != "" {
		prov, ok := s.catalog.Province(f.Province)
		if !ok {
			return apierr.BadRequest("invalid_province", "unknown province "+f.Province)
		}
		f.Province = prov
	}
	f.TruckType = strings.ToLower(strings.TrimSpace(f.TruckType))
	if f.AvailableOn != nil {
		d := startOfDay(*f.AvailableOn)
		f.AvailableOn = &d
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return nil
}

func camionPage(items []*types.CamionDisponible, total int64, limit, offset int) *CamionPage {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return &CamionPage{Items: items, Total: total, Limit: limit, Offset: offset}
}

func (s *camionService) List(ctx context.Context, f repos.CamionFilter) (*CamionPage, error) {
	dbc := dbctx.New(ctx)
	if _, err := currentUser(dbc, s.userRepo); err != nil {
		return nil, err
	}
	if err := s.modules.Require(ctx, types.ModuleCamiones); err != nil {
		return nil, err
	}
	if len(f.Statuses) == 0 {
		f.Statuses = []types.CamionStatus{types.CamionActivo}
	}
	if err := s.normalizeFilter(&f); err != nil {
		return nil, err
	}
	items, total, err := s.camionRepo.List(dbc, f)
	if err != nil {
		return nil, err
	}
	return camionPage(items, total, f.Limit, f.Offset), nil
}

func (s *camionService) ListMine(ctx context.Context, f repos.CamionFilter) (*CamionPage, error) {
	dbc := dbctx.New(ctx)
	u, err := s.requireCamionero(dbc)
	if err != nil {
		return nil, err
	}
	f.CarrierID = &u.ID
	if err := s.normalizeFilter(&f); err != nil {
		return nil, err
	}
	items, total, err := s.camionRepo.List(dbc, f)
	if err != nil {
		return nil, err
	}
	return camionPage(items, total, f.Limit, f.Offset), nil
}

func (s *camionService) Markers(ctx context.Context, bbox geo.BBox, f repos.CamionFilter) ([]types.Marker, error) {
	dbc := dbctx.New(ctx)
	if _, err := currentUser(dbc, s.userRepo); err != nil {
		return nil, err
	}
	if err := s.modules.Require(ctx, types.ModuleMapa); err != nil {
		return nil, err
	}
	if err := validBBox(bbox); err != nil {
		return nil, err
	}
	if err := s.normalizeFilter(&f); err != nil {
		return nil, err
	}
	key := s.markers.key(bbox, f)
	return s.markers.load(ctx, key, func() ([]types.Marker, error) {
		return s.camionRepo.Markers(dbc, bbox, f)
	})
}

func (s *camionService) ownedCamion(dbc dbctx.Context, u *types.User, id uuid.UUID) (*types.CamionDisponible, error) {
	c, err := s.camionRepo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound("camion_not_found")
	}
	if c.CarrierID != u.ID {
		return nil, apierr.Forbidden("not_owner")
	}
	return c, nil
}

// Update edits a posting. Extending the window of a vencido posting
// reactivates it, which counts against the tier limit again.
func (s *camionService) Update(ctx context.Context, id uuid.UUID, patch CamionPatch) (out *types.CamionDisponible, err error) {
	dbc := dbctx.New(ctx)
	u, err := s.requireCamionero(dbc)
	if err != nil {
		return nil, err
	}
	defer s.submissions.Track(monitor.KindCamionUpdate, u.ID)(&err)

	c, err := s.ownedCamion(dbc, u, id)
	if err != nil {
		return nil, err
	}
	in := CamionInput{
		TruckType:             c.TruckType,
		CapacityKg:            c.CapacityKg,
		Plate:                 c.Plate,
		Origin:                c.Origin,
		ServiceRadiusKm:       c.ServiceRadiusKm,
		PreferredDestProvince: c.PreferredDestProvince,
		AvailableFrom:         c.AvailableFrom,
		AvailableTo:           c.AvailableTo,
		Notes:                 c.Notes,
	}
	patch.apply(&in)
	if err := validateCamion(s.catalog, &in, timeNow()); err != nil {
		return nil, err
	}
	status := c.Status
	if status == types.CamionVencido {
		if in.AvailableTo != nil && in.AvailableTo.Before(startOfDay(timeNow())) {
			return nil, apierr.Conflict("camion_expired", "extend available_to to reactivate")
		}
		if err := s.premium.CheckCamionLimit(dbc, u, 1); err != nil {
			return nil, err
		}
		status = types.CamionActivo
	}
	if patch.Origin != nil {
		if err := s.geocoding.Resolve(ctx, &in.Origin); err != nil {
			return nil, err
		}
	}
	next := in.toCamion(c.CarrierID)
	next.ID, next.Status, next.CreatedAt = c.ID, status, c.CreatedAt
	next.UpdatedAt = timeNow()
	ok, err := s.camionRepo.UpdateIfStatus(dbc, c.ID, []types.CamionStatus{c.Status}, map[string]interface{}{
		"truck_type":              next.TruckType,
		"capacity_kg":             next.CapacityKg,
		"plate":                   next.Plate,
		"origin_address":          next.Origin.Address,
		"origin_city":             next.Origin.City,
		"origin_province":         next.Origin.Province,
		"origin_lat":              next.Origin.Lat,
		"origin_lng":              next.Origin.Lng,
		"origin_place_id":         next.Origin.PlaceID,
		"service_radius_km":       next.ServiceRadiusKm,
		"preferred_dest_province": next.PreferredDestProvince,
		"available_from":          next.AvailableFrom,
		"available_to":            next.AvailableTo,
		"notes":                   next.Notes,
		"status":                  next.Status,
		"updated_at":              next.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("update camion: %w", err)
	}
	if !ok {
		return nil, apierr.Conflict("camion_changed", "camion changed status meanwhile")
	}
	s.markers.invalidate(ctx)
	return next, nil
}

func (p CamionPatch) apply(in *CamionInput) {
	if p.TruckType != nil {
		in.TruckType = *p.TruckType
	}
	if p.CapacityKg != nil {
		in.CapacityKg = *p.CapacityKg
	}
	if p.Plate != nil {
		in.Plate = *p.Plate
	}
	if p.Origin != nil {
		in.Origin = *p.Origin
	}
	if p.ServiceRadiusKm != nil {
		in.ServiceRadiusKm = *p.ServiceRadiusKm
	}
	if p.PreferredDestProvince != nil {
		in.PreferredDestProvince = *p.PreferredDestProvince
	}
	if p.AvailableFrom != nil {
		in.AvailableFrom = *p.AvailableFrom
	}
	if p.AvailableTo != nil {
		in.AvailableTo = p.AvailableTo
	}
	if p.Notes != nil {
		in.Notes = *p.Notes
	}
}

func (s *camionService) Pause(ctx context.Context, id uuid.UUID) (*types.CamionDisponible, error) {
	return s.setStatus(ctx, id, types.CamionActivo, types.CamionPausado)
}

func (s *camionService) Resume(ctx context.Context, id uuid.UUID) (*types.CamionDisponible, error) {
	return s.setStatus(ctx, id, types.CamionPausado, types.CamionActivo)
}

func (s *camionService) setStatus(ctx context.Context, id uuid.UUID, from, to types.CamionStatus) (*types.CamionDisponible, error) {
	dbc := dbctx.New(ctx)
	u, err := s.requireCamionero(dbc)
	if err != nil {
		return nil, err
	}
	c, err := s.ownedCamion(dbc, u, id)
	if err != nil {
		return nil, err
	}
	if c.Status != from {
		return nil, errInvalidTransition
	}
	now := timeNow()
	ok, err := s.camionRepo.UpdateIfStatus(dbc, c.ID, []types.CamionStatus{from}, map[string]interface{}{
		"status":     to,
		"updated_at": now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errInvalidTransition
	}
	c.Status, c.UpdatedAt = to, now
	s.markers.invalidate(ctx)
	return c, nil
}

func (s *camionService) Delete(ctx context.Context, id uuid.UUID) error {
	dbc := dbctx.New(ctx)
	u, err := s.requireCamionero(dbc)
	if err != nil {
		return err
	}
	c, err := s.ownedCamion(dbc, u, id)
	if err != nil {
		return err
	}
	if err := s.camionRepo.SoftDelete(dbc, c.ID); err != nil {
		return fmt.Errorf("delete camion: %w", err)
	}
	s.markers.invalidate(ctx)
	return nil
}

func (s *camionService) Contact(ctx context.Context, id uuid.UUID) (*types.Contact, error) {
	dbc := dbctx.New(ctx)
	u, err := currentUser(dbc, s.userRepo)
	if err != nil {
		return nil, err
	}
	if err := requireUserType(u, types.UserTypeDador); err != nil {
		return nil, err
	}
	if err := s.modules.Require(ctx, types.ModuleCamiones); err != nil {
		return nil, err
	}
	c, err := s.camionRepo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound("camion_not_found")
	}
	if c.Status != types.CamionActivo {
		return nil, apierr.Conflict("camion_not_available", "camion is not available")
	}
	carrier, err := s.userRepo.GetByID(dbc, c.CarrierID)
	if err != nil {
		return nil, err
	}
	if carrier == nil || carrier.Blocked {
		return nil, apierr.NotFound("user_not_found")
	}
	// one notification per (camion, dador) no matter how often they ask
	if _, err := s.notifier.Notify(dbc, NotificationEvent{
		Type:          EventCamionContacto,
		UserID:        carrier.ID,
		EntityID:      c.ID,
		Discriminator: u.ID.String(),
		Data:          map[string]interface{}{"ActorName": u.DisplayName(), "City": c.Origin.City},
	}); err != nil {
		return nil, fmt.Errorf("notify contact: %w", err)
	}
	if s.emitter != nil {
		if err := s.emitter.Emit(background(ctx), realtime.SSEMessage{
			Channel: realtime.UserChannel(carrier.ID),
			Event:   realtime.SSEEventContactRequested,
			Data:    map[string]interface{}{"camion_id": c.ID, "dador": u.Public(timeNow())},
		}); err != nil {
			s.log.Warn("SSE emit failed", "camion_id", c.ID, "error", err)
		}
	}
	contact := carrier.Contact()
	return &contact, nil
}

// ExpireStale is run by the sweeper; it is not bound to a caller.
func (s *camionService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.camionRepo.ExpireStale(dbctx.New(ctx), startOfDay(timeNow()))
	if err != nil {
		return 0, fmt.Errorf("expire camiones: %w", err)
	}
	if n > 0 {
		s.markers.invalidate(ctx)
		s.log.Info("Expired camion postings", "count", n)
	}
	return n, nil
}
