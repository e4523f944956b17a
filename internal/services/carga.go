package services

import (
	"context"
	"fmt"
	"io"
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

var errInvalidTransition = apierr.Conflict("invalid_transition", "status change not allowed")

type CargaInput struct {
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	CargoType         string         `json:"cargo_type"`
	WeightKg          float64        `json:"weight_kg"`
	VolumeM3          float64        `json:"volume_m3"`
	RequiredTruckType string         `json:"required_truck_type"`
	Origin            types.Location `json:"origin"`
	Destination       types.Location `json:"destination"`
	PickupDate        time.Time      `json:"pickup_date"`
	DeliveryDate      *time.Time     `json:"delivery_date"`
	RateAmount        float64        `json:"rate_amount"`
	RateCurrency      types.Currency `json:"rate_currency"`
	RateMode          types.RateMode `json:"rate_mode"`
	PaymentTerms      string         `json:"payment_terms"`
}

// CargaPatch carries a partial update; nil fields are left untouched.
type CargaPatch struct {
	Title             *string         `json:"title"`
	Description       *string         `json:"description"`
	CargoType         *string         `json:"cargo_type"`
	WeightKg          *float64        `json:"weight_kg"`
	VolumeM3          *float64        `json:"volume_m3"`
	RequiredTruckType *string         `json:"required_truck_type"`
	Origin            *types.Location `json:"origin"`
	Destination       *types.Location `json:"destination"`
	PickupDate        *time.Time      `json:"pickup_date"`
	DeliveryDate      *time.Time      `json:"delivery_date"`
	RateAmount        *float64        `json:"rate_amount"`
	RateCurrency      *types.Currency `json:"rate_currency"`
	RateMode          *types.RateMode `json:"rate_mode"`
	PaymentTerms      *string         `json:"payment_terms"`
}

type CargaPage struct {
	Items  []*types.Carga `json:"items"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type CargaService interface {
	Create(ctx context.Context, in CargaInput) (*types.Carga, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Carga, error)
	List(ctx context.Context, f repos.CargaFilter) (*CargaPage, error)
	ListMine(ctx context.Context, f repos.CargaFilter) (*CargaPage, error)
	Markers(ctx context.Context, bbox geo.BBox, f repos.CargaFilter) ([]types.Marker, error)
	Update(ctx context.Context, id uuid.UUID, patch CargaPatch) (*types.Carga, error)
	Pause(ctx context.Context, id uuid.UUID) (*types.Carga, error)
	Resume(ctx context.Context, id uuid.UUID) (*types.Carga, error)
	Cancel(ctx context.Context, id uuid.UUID) (*types.Carga, error)
	Complete(ctx context.Context, id uuid.UUID) (*types.Carga, error)
	Delete(ctx context.Context, id uuid.UUID) error
	BulkUpload(ctx context.Context, r io.Reader) (*BulkUploadResult, error)
}

type cargaService struct {
	db          *gorm.DB
	log         *logger.Logger
	userRepo    repos.UserRepo
	cargaRepo   repos.CargaRepo
	modules     ModuleService
	premium     PremiumService
	geocoding   GeocodingService
	catalog     *catalog.Catalog
	notifier    Notifier
	emitter     realtime.Emitter
	markers     *markerCache
	submissions *monitor.SubmissionMonitor
}

type CargaServiceDeps struct {
	UserRepo    repos.UserRepo
	CargaRepo   repos.CargaRepo
	Modules     ModuleService
	Premium     PremiumService
	Geocoding   GeocodingService
	Catalog     *catalog.Catalog
	Notifier    Notifier
	Emitter     realtime.Emitter
	Cache       redis.Cache
	Submissions *monitor.SubmissionMonitor
}

func NewCargaService(db *gorm.DB, baseLog *logger.Logger, deps CargaServiceDeps) CargaService {
	log := baseLog.With("service", "CargaService")
	return &cargaService{
		db:          db,
		log:         log,
		userRepo:    deps.UserRepo,
		cargaRepo:   deps.CargaRepo,
		modules:     deps.Modules,
		premium:     deps.Premium,
		geocoding:   deps.Geocoding,
		catalog:     deps.Catalog,
		notifier:    deps.Notifier,
		emitter:     deps.Emitter,
		markers:     newMarkerCache(log, deps.Cache, "cargas"),
		submissions: deps.Submissions,
	}
}

// validateCarga normalizes in place. Geocoding happens separately.
func validateCarga(cat *catalog.Catalog, in *CargaInput, today time.Time) error {
	in.Title = trimTo(in.Title, 140)
	in.Description = trimTo(in.Description, 4000)
	in.CargoType = strings.ToLower(trimTo(in.CargoType, 60))
	in.RequiredTruckType = strings.ToLower(strings.TrimSpace(in.RequiredTruckType))
	in.PaymentTerms = trimTo(in.PaymentTerms, 255)
	if in.Title == "" {
		return apierr.BadRequest("invalid_title", "title is required")
	}
	if !finite(in.WeightKg, in.VolumeM3, in.RateAmount, in.Origin.Lat, in.Origin.Lng, in.Destination.Lat, in.Destination.Lng) {
		return apierr.BadRequest("invalid_number", "numeric fields must be finite")
	}
	if in.WeightKg < 0 || in.VolumeM3 < 0 {
		return apierr.BadRequest("invalid_weight", "weight and volume cannot be negative")
	}
	if in.RequiredTruckType != "" && !cat.TruckTypeValid(in.RequiredTruckType) {
		return apierr.BadRequest("invalid_truck_type", "unknown truck type "+in.RequiredTruckType)
	}
	if in.RateAmount <= 0 {
		return apierr.BadRequest("invalid_rate", "rate_amount must be positive")
	}
	if in.RateCurrency == "" {
		in.RateCurrency = types.CurrencyARS
	}
	in.RateCurrency = types.Currency(strings.ToUpper(string(in.RateCurrency)))
	if in.RateCurrency != types.CurrencyARS && in.RateCurrency != types.CurrencyUSD {
		return apierr.BadRequest("invalid_currency", "rate_currency must be ARS or USD")
	}
	if in.RateMode == "" {
		in.RateMode = types.RatePorViaje
	}
	switch in.RateMode {
	case types.RatePorViaje, types.RatePorTonelada, types.RatePorKm:
	default:
		return apierr.BadRequest("invalid_rate_mode", "unknown rate mode "+string(in.RateMode))
	}
	if in.PickupDate.IsZero() {
		return apierr.BadRequest("invalid_pickup_date", "pickup_date is required")
	}
	in.PickupDate = startOfDay(in.PickupDate)
	if in.PickupDate.Before(startOfDay(today)) {
		return apierr.BadRequest("invalid_pickup_date", "pickup_date cannot be in the past")
	}
	if in.DeliveryDate != nil {
		d := startOfDay(*in.DeliveryDate)
		if d.Before(in.PickupDate) {
			return apierr.BadRequest("invalid_delivery_date", "delivery_date must not precede pickup_date")
		}
		in.DeliveryDate = &d
	}
	return nil
}

func (in CargaInput) toCarga(ownerID uuid.UUID) *types.Carga {
	return &types.Carga{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		Title:             in.Title,
		Description:       in.Description,
		CargoType:         in.CargoType,
		WeightKg:          in.WeightKg,
		VolumeM3:          in.VolumeM3,
		RequiredTruckType: in.RequiredTruckType,
		Origin:            in.Origin,
		Destination:       in.Destination,
		PickupDate:        in.PickupDate,
		DeliveryDate:      in.DeliveryDate,
		RateAmount:        in.RateAmount,
		RateCurrency:      in.RateCurrency,
		RateMode:          in.RateMode,
		PaymentTerms:      in.PaymentTerms,
		Status:            types.CargaDisponible,
	}
}

func (s *cargaService) resolveLocations(ctx context.Context, in *CargaInput) error {
	if err := s.geocoding.Resolve(ctx, &in.Origin); err != nil {
		return err
	}
	return s.geocoding.Resolve(ctx, &in.Destination)
}

func (s *cargaService) requireDador(dbc dbctx.Context) (*types.User, error) {
	u, err := currentUser(dbc, s.userRepo)
	if err != nil {
		return nil, err
	}
	if err := requireUserType(u, types.UserTypeDador); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *cargaService) Create(ctx context.Context, in CargaInput) (out *types.Carga, err error) {
	dbc := dbctx.New(ctx)
	u, err := s.requireDador(dbc)
	if err != nil {
		return nil, err
	}
	defer s.submissions.Track(monitor.KindCargaCreate, u.ID)(&err)

	if err := s.modules.Require(ctx, types.ModuleCargas); err != nil {
		return nil, err
	}
	if err := validateCarga(s.catalog, &in, timeNow()); err != nil {
		return nil, err
	}
	if err := s.premium.CheckCargaLimit(dbc, u, 1); err != nil {
		return nil, err
	}
	if err := s.resolveLocations(ctx, &in); err != nil {
		return nil, err
	}
	created, err := s.cargaRepo.Create(dbc, []*types.Carga{in.toCarga(u.ID)})
	if err != nil {
		return nil, fmt.Errorf("create carga: %w", err)
	}
	s.markers.invalidate(ctx)
	s.log.Info("Carga created", "carga_id", created[0].ID, "owner_id", u.ID)
	return created[0], nil
}

func (s *cargaService) Get(ctx context.Context, id uuid.UUID) (*types.Carga, error) {
	dbc := dbctx.New(ctx)
	if _, err := currentUser(dbc, s.userRepo); err != nil {
		return nil, err
	}
	c, err := s.cargaRepo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound("carga_not_found")
	}
	return c, nil
}

func (s *cargaService) normalizeFilter(f *repos.CargaFilter) error {
	switch f.Sort {
	case "", repos.SortRecent, repos.SortRate, repos.SortPickup:
	default:
		return apierr.BadRequest("invalid_sort", "sort must be recent, rate or pickup")
	}
	for _, st := range f.Statuses {
		if !st.Valid() {
			return apierr.BadRequest("invalid_status", "unknown status "+string(st))
		}
	}
	for _, p := range []*string{&f.OriginProvince, &f.DestinationProvince} {
		if *p == "" {
			continue
		}
		prov, ok := s.catalog.Province(*p)
		if !ok {
			return apierr.BadRequest("invalid_province", "unknown province "+*p)
		}
		*p = prov
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return nil
}

func pageOf(items []*types.Carga, total int64, f repos.CargaFilter) *CargaPage {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return &CargaPage{Items: items, Total: total, Limit: limit, Offset: f.Offset}
}

func (s *cargaService) List(ctx context.Context, f repos.CargaFilter) (*CargaPage, error) {
	dbc := dbctx.New(ctx)
	if _, err := currentUser(dbc, s.userRepo); err != nil {
		return nil, err
	}
	if err := s.modules.Require(ctx, types.ModuleCargas); err != nil {
		return nil, err
	}
	if len(f.Statuses) == 0 {
		f.Statuses = []types.CargaStatus{types.CargaDisponible}
	}
	if err := s.normalizeFilter(&f); err != nil {
		return nil, err
	}
	items, total, err := s.cargaRepo.List(dbc, f)
	if err != nil {
		return nil, err
	}
	return pageOf(items, total, f), nil
}

func (s *cargaService) ListMine(ctx context.Context, f repos.CargaFilter) (*CargaPage, error) {
	dbc := dbctx.New(ctx)
	u, err := s.requireDador(dbc)
	if err != nil {
		return nil, err
	}
	f.OwnerID = &u.ID
	if err := s.normalizeFilter(&f); err != nil {
		return nil, err
	}
	items, total, err := s.cargaRepo.List(dbc, f)
	if err != nil {
		return nil, err
	}
	return pageOf(items, total, f), nil
}

func (s *cargaService) Markers(ctx context.Context, bbox geo.BBox, f repos.CargaFilter) ([]types.Marker, error) {
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
		return s.cargaRepo.Markers(dbc, bbox, f)
	})
}

// ownedCarga loads a carga and checks the caller owns it.
func (s *cargaService) ownedCarga(dbc dbctx.Context, u *types.User, id uuid.UUID, lock bool) (*types.Carga, error) {
	var (
		c   *types.Carga
		err error
	)
	if lock {
		c, err = s.cargaRepo.GetByIDForUpdate(dbc, id)
	} else {
		c, err = s.cargaRepo.GetByID(dbc, id)
	}
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound("carga_not_found")
	}
	if c.OwnerID != u.ID {
		return nil, apierr.Forbidden("not_owner")
	}
	return c, nil
}

func (s *cargaService) Update(ctx context.Context, id uuid.UUID, patch CargaPatch) (out *types.Carga, err error) {
	dbc := dbctx.New(ctx)
	u, err := s.requireDador(dbc)
	if err != nil {
		return nil, err
	}
	defer s.submissions.Track(monitor.KindCargaUpdate, u.ID)(&err)

	c, err := s.ownedCarga(dbc, u, id, false)
	if err != nil {
		return nil, err
	}
	if !c.Status.Active() {
		return nil, apierr.Conflict("carga_not_editable", "only disponible or pausada cargas can be edited")
	}
	in := CargaInput{
		Title:             c.Title,
		Description:       c.Description,
		CargoType:         c.CargoType,
		WeightKg:          c.WeightKg,
		VolumeM3:          c.VolumeM3,
		RequiredTruckType: c.RequiredTruckType,
		Origin:            c.Origin,
		Destination:       c.Destination,
		PickupDate:        c.PickupDate,
		DeliveryDate:      c.DeliveryDate,
		RateAmount:        c.RateAmount,
		RateCurrency:      c.RateCurrency,
		RateMode:          c.RateMode,
		PaymentTerms:      c.PaymentTerms,
	}
	patch.apply(&in)
	today := timeNow()
	if patch.PickupDate == nil && c.PickupDate.Before(today) {
		// an unchanged pickup date is not held to the not-in-the-past rule
		today = c.PickupDate
	}
	if err := validateCarga(s.catalog, &in, today); err != nil {
		return nil, err
	}
	if patch.Origin != nil || patch.Destination != nil {
		if err := s.resolveLocations(ctx, &in); err != nil {
			return nil, err
		}
	}
	next := in.toCarga(c.OwnerID)
	next.ID, next.Status, next.CreatedAt = c.ID, c.Status, c.CreatedAt
	updates := map[string]interface{}{
		"title":                next.Title,
		"description":          next.Description,
		"cargo_type":           next.CargoType,
		"weight_kg":            next.WeightKg,
		"volume_m3":            next.VolumeM3,
		"required_truck_type":  next.RequiredTruckType,
		"origin_address":       next.Origin.Address,
		"origin_city":          next.Origin.City,
		"origin_province":      next.Origin.Province,
		"origin_lat":           next.Origin.Lat,
		"origin_lng":           next.Origin.Lng,
		"origin_place_id":      next.Origin.PlaceID,
		"destination_address":  next.Destination.Address,
		"destination_city":     next.Destination.City,
		"destination_province": next.Destination.Province,
		"destination_lat":      next.Destination.Lat,
		"destination_lng":      next.Destination.Lng,
		"destination_place_id": next.Destination.PlaceID,
		"pickup_date":          next.PickupDate,
		"delivery_date":        next.DeliveryDate,
		"rate_amount":          next.RateAmount,
		"rate_currency":        next.RateCurrency,
		"rate_mode":            next.RateMode,
		"payment_terms":        next.PaymentTerms,
		"updated_at":           timeNow(),
	}
	ok, err := s.cargaRepo.UpdateIfStatus(dbc, c.ID, []types.CargaStatus{types.CargaDisponible, types.CargaPausada}, updates)
	if err != nil {
		return nil, fmt.Errorf("update carga: %w", err)
	}
	if !ok {
		return nil, apierr.Conflict("carga_not_editable", "carga changed status meanwhile")
	}
	s.markers.invalidate(ctx)
	return next, nil
}

func (p CargaPatch) apply(in *CargaInput) {
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.CargoType != nil {
		in.CargoType = *p.CargoType
	}
	if p.WeightKg != nil {
		in.WeightKg = *p.WeightKg
	}
	if p.VolumeM3 != nil {
		in.VolumeM3 = *p.VolumeM3
	}
	if p.RequiredTruckType != nil {
		in.RequiredTruckType = *p.RequiredTruckType
	}
	if p.Origin != nil {
		in.Origin = *p.Origin
	}
	if p.Destination != nil {
		in.Destination = *p.Destination
	}
	if p.PickupDate != nil {
		in.PickupDate = *p.PickupDate
	}
	if p.DeliveryDate != nil {
		in.DeliveryDate = p.DeliveryDate
	}
	if p.RateAmount != nil {
		in.RateAmount = *p.RateAmount
	}
	if p.RateCurrency != nil {
		in.RateCurrency = *p.RateCurrency
	}
	if p.RateMode != nil {
		in.RateMode = *p.RateMode
	}
	if p.PaymentTerms != nil {
		in.PaymentTerms = *p.PaymentTerms
	}
}

func (s *cargaService) Pause(ctx context.Context, id uuid.UUID) (*types.Carga, error) {
	return s.changeStatus(ctx, id, types.CargaPausada)
}

func (s *cargaService) Resume(ctx context.Context, id uuid.UUID) (*types.Carga, error) {
	return s.changeStatus(ctx, id, types.CargaDisponible)
}

func (s *cargaService) Cancel(ctx context.Context, id uuid.UUID) (*types.Carga, error) {
	return s.changeStatus(ctx, id, types.CargaCancelada)
}

func (s *cargaService) Complete(ctx context.Context, id uuid.UUID) (*types.Carga, error) {
	return s.changeStatus(ctx, id, types.CargaCompletada)
}

// changeStatus moves an owned carga along its state machine. Moving into
// asignada only happens through postulación acceptance.
func (s *cargaService) changeStatus(ctx context.Context, id uuid.UUID, to types.CargaStatus) (out *types.Carga, err error) {
	dbc := dbctx.New(ctx)
	u, err := s.requireDador(dbc)
	if err != nil {
		return nil, err
	}
	defer s.submissions.Track(monitor.KindCargaStatus, u.ID)(&err)

	now := timeNow()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tdbc := dbctx.Context{Ctx: ctx, Tx: tx}
		c, err := s.ownedCarga(tdbc, u, id, true)
		if err != nil {
			return err
		}
		if !c.Status.CanTransitionTo(to) || to == types.CargaAsignada {
			return errInvalidTransition
		}
		updates := map[string]interface{}{"status": to, "updated_at": now}
		if to == types.CargaCompletada {
			updates["completed_at"] = now
			c.CompletedAt = &now
		}
		ok, err := s.cargaRepo.UpdateIfStatus(tdbc, c.ID, []types.CargaStatus{c.Status}, updates)
		if err != nil {
			return err
		}
		if !ok {
			return errInvalidTransition
		}
		c.Status = to
		c.UpdatedAt = now
		out = c
		return s.notifyStatus(tdbc, u, c, now)
	})
	if err != nil {
		return nil, err
	}
	s.markers.invalidate(ctx)
	if out.AssignedCarrierID != nil {
		s.emitStatus(ctx, *out.AssignedCarrierID, out)
	}
	s.log.Info("Carga status changed", "carga_id", out.ID, "status", out.Status)
	return out, nil
}

func (s *cargaService) notifyStatus(dbc dbctx.Context, owner *types.User, c *types.Carga, now time.Time) error {
	if c.AssignedCarrierID == nil {
		return nil
	}
	var event string
	switch c.Status {
	case types.CargaCancelada:
		event = EventCargaCancelada
	case types.CargaCompletada:
		event = EventCargaCompletada
	default:
		return nil
	}
	data := map[string]interface{}{"CargaTitle": c.Title, "ActorName": owner.DisplayName()}
	for _, recipient := range []uuid.UUID{*c.AssignedCarrierID, c.OwnerID} {
		if event == EventCargaCancelada && recipient == c.OwnerID {
			continue
		}
		if _, err := s.notifier.Notify(dbc, NotificationEvent{
			Type:          event,
			UserID:        recipient,
			EntityID:      c.ID,
			Discriminator: now.Format(time.RFC3339Nano),
			Data:          data,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *cargaService) emitStatus(ctx context.Context, userID uuid.UUID, c *types.Carga) {
	if s.emitter == nil {
		return
	}
	err := s.emitter.Emit(background(ctx), realtime.SSEMessage{
		Channel: realtime.UserChannel(userID),
		Event:   realtime.SSEEventCargaStatus,
		Data:    map[string]interface{}{"carga_id": c.ID, "status": c.Status},
	})
	if err != nil {
		s.log.Warn("SSE emit failed", "carga_id", c.ID, "error", err)
	}
}

func (s *cargaService) Delete(ctx context.Context, id uuid.UUID) error {
	dbc := dbctx.New(ctx)
	u, err := s.requireDador(dbc)
	if err != nil {
		return err
	}
	c, err := s.ownedCarga(dbc, u, id, false)
	if err != nil {
		return err
	}
	if c.Status == types.CargaAsignada {
		return apierr.Conflict("carga_assigned", "assigned cargas must be completed or cancelled first")
	}
	if err := s.cargaRepo.SoftDelete(dbc, c.ID); err != nil {
		return fmt.Errorf("delete carga: %w", err)
	}
	s.markers.invalidate(ctx)
	s.log.Info("Carga deleted", "carga_id", c.ID)
	return nil
}
