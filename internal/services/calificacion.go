package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/observability/monitor"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

type RateInput struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

type CalificacionPage struct {
	Items   []*types.Calificacion `json:"items"`
	Total   int64                 `json:"total"`
	Summary types.RatingSummary   `json:"summary"`
}

type CalificacionService interface {
	Rate(ctx context.Context, cargaID uuid.UUID, in RateInput) (*types.Calificacion, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) (*CalificacionPage, error)
	Summary(ctx context.Context, userID uuid.UUID) (types.RatingSummary, error)
}

type calificacionService struct {
	db               *gorm.DB
	log              *logger.Logger
	userRepo         repos.UserRepo
	cargaRepo        repos.CargaRepo
	calificacionRepo repos.CalificacionRepo
	modules          ModuleService
	notifier         Notifier
	submissions      *monitor.SubmissionMonitor
}

func NewCalificacionService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, cargaRepo repos.CargaRepo, calificacionRepo repos.CalificacionRepo, modules ModuleService, notifier Notifier, submissions *monitor.SubmissionMonitor) CalificacionService {
	return &calificacionService{
		db:               db,
		log:              log.With("service", "CalificacionService"),
		userRepo:         userRepo,
		cargaRepo:        cargaRepo,
		calificacionRepo: calificacionRepo,
		modules:          modules,
		notifier:         notifier,
		submissions:      submissions,
	}
}

func (s *calificacionService) Rate(ctx context.Context, cargaID uuid.UUID, in RateInput) (out *types.Calificacion, err error) {
	dbc := dbctx.New(ctx)
	u, err := currentUser(dbc, s.userRepo)
	if err != nil {
		return nil, err
	}
	defer s.submissions.Track(monitor.KindCalificacion, u.ID)(&err)

	if err := s.modules.Require(ctx, types.ModuleCalificaciones); err != nil {
		return nil, err
	}
	if in.Score < types.MinScore || in.Score > types.MaxScore {
		return nil, apierr.BadRequest("invalid_score", fmt.Sprintf("score must be between %d and %d", types.MinScore, types.MaxScore))
	}
	in.Comment = trimTo(in.Comment, 1000)

	c, err := s.cargaRepo.GetByID(dbc, cargaID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound("carga_not_found")
	}
	if c.Status != types.CargaCompletada || c.AssignedCarrierID == nil {
		return nil, apierr.Conflict("carga_not_completed", "only completed cargas can be rated")
	}
	var rated uuid.UUID
	switch u.ID {
	case c.OwnerID:
		rated = *c.AssignedCarrierID
	case *c.AssignedCarrierID:
		rated = c.OwnerID
	default:
		return nil, apierr.Forbidden("not_participant")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tdbc := dbctx.Context{Ctx: ctx, Tx: tx}
		exists, err := s.calificacionRepo.Exists(tdbc, c.ID, u.ID)
		if err != nil {
			return err
		}
		if exists {
			return apierr.Conflict("already_rated", "you already rated this carga")
		}
		cal := &types.Calificacion{
			ID:      uuid.New(),
			CargaID: c.ID,
			RaterID: u.ID,
			RatedID: rated,
			Score:   in.Score,
			Comment: in.Comment,
		}
		if err := s.calificacionRepo.Create(tdbc, cal); err != nil {
			return err
		}
		if _, err := s.notifier.Notify(tdbc, NotificationEvent{
			Type:          EventCalificacionCreated,
			UserID:        rated,
			EntityID:      cal.ID,
			Discriminator: "created",
			Data:          map[string]interface{}{"CargaTitle": c.Title, "ActorName": u.DisplayName(), "Score": in.Score},
		}); err != nil {
			return err
		}
		out = cal
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Calificacion stored", "carga_id", c.ID, "rater_id", u.ID, "rated_id", rated, "score", in.Score)
	return out, nil
}

func (s *calificacionService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) (*CalificacionPage, error) {
	dbc := dbctx.New(ctx)
	if _, err := currentUser(dbc, s.userRepo); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.calificacionRepo.ListByRated(dbc, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	sum, err := s.calificacionRepo.Summary(dbc, userID)
	if err != nil {
		return nil, err
	}
	return &CalificacionPage{Items: items, Total: total, Summary: sum}, nil
}

func (s *calificacionService) Summary(ctx context.Context, userID uuid.UUID) (types.RatingSummary, error) {
	return s.calificacionRepo.Summary(dbctx.New(ctx), userID)
}
