package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fletar/fletar-backend/internal/catalog"
	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/matching"
	"github.com/fletar/fletar-backend/internal/observability"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/geo"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

// prefetchLimit bounds how many candidates are pulled from the bbox query
// before scoring.
const prefetchLimit = 2000

type MatchingService interface {
	SuggestCargasForCamion(ctx context.Context, camionID uuid.UUID) ([]matching.CargaMatch, error)
	SuggestCamionesForCarga(ctx context.Context, cargaID uuid.UUID) ([]matching.CamionMatch, error)
}

type matchingService struct {
	log        *logger.Logger
	userRepo   repos.UserRepo
	cargaRepo  repos.CargaRepo
	camionRepo repos.CamionRepo
	modules    ModuleService
	catalog    *catalog.Catalog
}

func NewMatchingService(log *logger.Logger, userRepo repos.UserRepo, cargaRepo repos.CargaRepo, camionRepo repos.CamionRepo, modules ModuleService, cat *catalog.Catalog) MatchingService {
	return &matchingService{
		log:        log.With("service", "MatchingService"),
		userRepo:   userRepo,
		cargaRepo:  cargaRepo,
		camionRepo: camionRepo,
		modules:    modules,
		catalog:    cat,
	}
}

func (s *matchingService) SuggestCargasForCamion(ctx context.Context, camionID uuid.UUID) ([]matching.CargaMatch, error) {
	dbc := dbctx.New(ctx)
	u, err := currentUser(dbc, s.userRepo)
	if err != nil {
		return nil, err
	}
	if err := s.modules.Require(ctx, types.ModuleMatching); err != nil {
		return nil, err
	}
	camion, err := s.camionRepo.GetByID(dbc, camionID)
	if err != nil {
		return nil, err
	}
	if camion == nil {
		return nil, apierr.NotFound("camion_not_found")
	}
	if camion.CarrierID != u.ID && !u.IsAdmin() {
		return nil, apierr.Forbidden("not_owner")
	}

	start := time.Now()
	box := geo.Around(camion.Origin.Point(), camion.ServiceRadiusKm)
	candidates, err := s.cargaRepo.InBBox(dbc, box, []types.CargaStatus{types.CargaDisponible}, prefetchLimit)
	if err != nil {
		return nil, err
	}
	out := matching.RankCargas(camion, candidates, s.catalog.Compatible, matching.DefaultLimit)
	observability.ObserveMatching("cargas_for_camion", len(candidates), time.Since(start))
	s.log.Debug("Matched cargas", "camion_id", camion.ID, "candidates", len(candidates), "matches", len(out))
	return out, nil
}

// SuggestCamionesForCarga prefetches with the widest allowed service radius
// and lets each camión's own radius filter the rest.
func (s *matchingService) SuggestCamionesForCarga(ctx context.Context, cargaID uuid.UUID) ([]matching.CamionMatch, error) {
	dbc := dbctx.New(ctx)
	u, err := currentUser(dbc, s.userRepo)
	if err != nil {
		return nil, err
	}
	if err := s.modules.Require(ctx, types.ModuleMatching); err != nil {
		return nil, err
	}
	carga, err := s.cargaRepo.GetByID(dbc, cargaID)
	if err != nil {
		return nil, err
	}
	if carga == nil {
		return nil, apierr.NotFound("carga_not_found")
	}
	if carga.OwnerID != u.ID && !u.IsAdmin() {
		return nil, apierr.Forbidden("not_owner")
	}

	start := time.Now()
	box := geo.Around(carga.Origin.Point(), types.MaxServiceRadiusKm)
	candidates, err := s.camionRepo.InBBox(dbc, box, []types.CamionStatus{types.CamionActivo}, prefetchLimit)
	if err != nil {
		return nil, err
	}
	out := matching.RankCamiones(carga, candidates, s.catalog.Compatible, matching.DefaultLimit)
	observability.ObserveMatching("camiones_for_carga", len(candidates), time.Since(start))
	s.log.Debug("Matched camiones", "carga_id", carga.ID, "candidates", len(candidates), "matches", len(out))
	return out, nil
}
