package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/clients/redis"
	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/observability/monitor"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
	"github.com/fletar/fletar-backend/internal/realtime"
)

type ApplyInput struct {
	Message      string     `json:"message"`
	ProposedRate *float64   `json:"proposed_rate"`
	CamionID     *uuid.UUID `json:"camion_id"`
}

// PostulacionView is what a carga owner sees for each applicant.
type PostulacionView struct {
	*types.Postulacion
	Applicant  *types.PublicProfile `json:"applicant,omitempty"`
	Reputation *types.RatingSummary `json:"reputation,omitempty"`
}

type PostulacionPage struct {
	Items  []*types.Postulacion `json:"items"`
	Total  int64                `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

type PostulacionService interface {
	Apply(ctx context.Context, cargaID uuid.UUID, in ApplyInput) (*types.Postulacion, error)
	ListForCarga(ctx context.Context, cargaID uuid.UUID, statuses []types.PostulacionStatus) ([]*PostulacionView, error)
	ListMine(ctx context.Context, statuses []types.PostulacionStatus, limit, offset int) (*PostulacionPage, error)
	Accept(ctx context.Context, id uuid.UUID) (*types.Postulacion, error)
	Reject(ctx context.Context, id uuid.UUID) (*types.Postulacion, error)
	Pause(ctx context.Context, id uuid.UUID) (*types.Postulacion, error)
	Resume(ctx context.Context, id uuid.UUID) (*types.Postulacion, error)
	Cancel(ctx context.Context, id uuid.UUID) (*types.Postulacion, error)
	// Contact returns the counterparty's contact data once the postulación
	// has been accepted.
	Contact(ctx context.Context, id uuid.UUID) (*types.Contact, error)
}

type PostulacionServiceDeps struct {
	UserRepo         repos.UserRepo
	CargaRepo        repos.CargaRepo
	CamionRepo       repos.CamionRepo
	PostulacionRepo  repos.PostulacionRepo
	CalificacionRepo repos.CalificacionRepo
	Modules          ModuleService
	Notifier         Notifier
	Emitter          realtime.Emitter
	Cache            redis.Cache
	Submissions      *monitor.SubmissionMonitor
}

type postulacionService struct {
	db               *gorm.DB
	log              *logger.Logger
	userRepo         repos.UserRepo
	cargaRepo        repos.CargaRepo
	camionRepo       repos.CamionRepo
	postulacionRepo  repos.PostulacionRepo
	calificacionRepo repos.CalificacionRepo
	modules          ModuleService
	notifier         Notifier
	emitter          realtime.Emitter
	cargaMarkers     *markerCache
	submissions      *monitor.SubmissionMonitor
}

func NewPostulacionService(db *gorm.DB, baseLog *logger.Logger, deps PostulacionServiceDeps) PostulacionService {
	log := baseLog.With("service", "PostulacionService")
	return &postulacionService{
		db:               db,
		log:              log,
		userRepo:         deps.UserRepo,
		cargaRepo:        deps.CargaRepo,
		camionRepo:       deps.CamionRepo,
		postulacionRepo:  deps.PostulacionRepo,
		calificacionRepo: deps.CalificacionRepo,
		modules:          deps.Modules,
		notifier:         deps.Notifier,
		emitter:          deps.Emitter,
		cargaMarkers:     newMarkerCache(log, deps.Cache, "cargas"),
		submissions:      deps.Submissions,
	}
}

func (s *postulacionService) Apply(ctx context.Context, cargaID uuid.UUID, in ApplyInput) (out *types.Postulacion, err error) {
	dbc := dbctx.New(ctx)
	u, err := currentUser(dbc, s.userRepo)
	if err != nil {
		return nil, err
	}
	if err := requireUserType(u, types.UserTypeCamionero); err != nil {
		return nil, err
	}
	defer s.submissions.Track(monitor.KindPostulacionApply, u.ID)(&err)

	if err := s.modules.Require(ctx, types.ModulePostulaciones); err != nil {
		return nil, err
	}
	in.Message = trimTo(in.Message, 2000)
	if in.ProposedRate != nil && *in.ProposedRate <= 0 {
		return nil, apierr.BadRequest("invalid_rate", "proposed_rate must be positive")
	}
	if in.CamionID != nil {
		camion, err := s.camionRepo.GetByID(dbc, *in.CamionID)
		if err != nil {
			return nil, err
		}
		if camion == nil || camion.CarrierID != u.ID {
			return nil, apierr.BadRequest("invalid_camion", "camion_id must reference one of your postings")
		}
	}

	var carga *types.Carga
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tdbc := dbctx.Context{Ctx: ctx, Tx: tx}
		// the row lock serializes concurrent applications to the same carga
		c, err := s.cargaRepo.GetByIDForUpdate(tdbc, cargaID)
		if err != nil {
			return err
		}
		if c == nil {
			return apierr.NotFound("carga_not_found")
		}
		if c.OwnerID == u.ID {
			return apierr.Forbidden("own_carga")
		}
		if c.Status != types.CargaDisponible {
			return apierr.Conflict("carga_not_available", "carga is not accepting applications")
		}
		exists, err := s.postulacionRepo.ExistsLive(tdbc, c.ID, u.ID)
		if err != nil {
			return err
		}
		if exists {
			return apierr.Conflict("already_applied", "you already applied to this carga")
		}
		p := &types.Postulacion{
			ID:           uuid.New(),
			CargaID:      c.ID,
			CamioneroID:  u.ID,
			CamionID:     in.CamionID,
			Message:      in.Message,
			ProposedRate: in.ProposedRate,
			Status:       types.PostulacionPendiente,
		}
		if err := s.postulacionRepo.Create(tdbc, p); err != nil {
			return err
		}
		data := map[string]interface{}{"CargaTitle": c.Title, "ActorName": u.DisplayName()}
		if in.ProposedRate != nil {
			data["ProposedRate"] = fmt.Sprintf("%s %.2f", c.RateCurrency, *in.ProposedRate)
		}
		if _, err := s.notifier.Notify(tdbc, NotificationEvent{
			Type:          EventPostulacionCreated,
			UserID:        c.OwnerID,
			EntityID:      p.ID,
			Discriminator: "created",
			Data:          data,
		}); err != nil {
			return err
		}
		carga, out = c, p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, carga.OwnerID, out)
	s.log.Info("Postulacion created", "postulacion_id", out.ID, "carga_id", carga.ID, "camionero_id", u.ID)
	return out, nil
}

func (s *postulacionService) ListForCarga(ctx context.Context, cargaID uuid.UUID, statuses []types.PostulacionStatus) ([]*PostulacionView, error) {
	dbc := dbctx.New(ctx)
	u, err := currentUser(dbc, s.userRepo)
	if err != nil {
		return nil, err
	}
	c, err := s.cargaRepo.GetByID(dbc, cargaID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound("carga_not_found")
	}
	if c.OwnerID != u.ID {
		return nil, apierr.Forbidden("not_owner")
	}
	items, err := s.postulacionRepo.ListByCarga(dbc, c.ID, statuses)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, p := range items {
		ids = append(ids, p.CamioneroID)
	}
	applicants, err := s.userRepo.GetByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.User, len(applicants))
	for _, a := range applicants {
		byID[a.ID] = a
	}
	now := timeNow()
	summaries := map[uuid.UUID]*types.RatingSummary{}
	out := make([]*PostulacionView, 0, len(items))
	for _, p := range items {
		view := &PostulacionView{Postulacion: p}
		if a, ok := byID[p.CamioneroID]; ok {
			pub := a.Public(now)
			view.Applicant = &pub
		}
		sum, ok := summaries[p.CamioneroID]
		if !ok {
			rs, err := s.calificacionRepo.Summary(dbc, p.CamioneroID)
			if err != nil {
				return nil, err
			}
			sum = &rs
			summaries[p.CamioneroID] = sum
		}
		view.Reputation = sum
		out = append(out, view)
	}
	return out, nil
}

func (s *postulacionService) ListMine(ctx context.Context, statuses []types.PostulacionStatus, limit, offset int) (*PostulacionPage, error) {
	dbc := dbctx.New(ctx)
	u, err := currentUser(dbc, s.userRepo)
	if err != nil {
		return nil, err
	}
	if err := requireUserType(u, types.UserTypeCamionero); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.postulacionRepo.ListByCamionero(dbc, u.ID, statuses, limit, offset)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return &PostulacionPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *postulacionService) Accept(ctx context.Context, id uuid.UUID) (*types.Postulacion, error) {
	return s.transition(ctx, id, types.PostulacionAceptada)
}

func (s *postulacionService) Reject(ctx context.Context, id uuid.UUID) (*types.Postulacion, error) {
	return s.transition(ctx, id, types.PostulacionRechazada)
}

func (s *postulacionService) Pause(ctx context.Context, id uuid.UUID) (*types.Postulacion, error) {
	return s.transition(ctx, id, types.PostulacionPausada)
}

func (s *postulacionService) Resume(ctx context.Context, id uuid.UUID) (*types.Postulacion, error) {
	return s.transition(ctx, id, types.PostulacionPendiente)
}

func (s *postulacionService) Cancel(ctx context.Context, id uuid.UUID) (*types.Postulacion, error) {
	return s.transition(ctx, id, types.PostulacionCancelada)
}

func (s *postulacionService) transition(ctx context.Context, id uuid.UUID, to types.PostulacionStatus) (out *types.Postulacion, err error) {
	dbc := dbctx.New(ctx)
	u, err := currentUser(dbc, s.userRepo)
	if err != nil {
		return nil, err
	}
	defer s.submissions.Track(monitor.KindPostulacionStatus, u.ID)(&err)

	var recipient uuid.UUID
	now := timeNow()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tdbc := dbctx.Context{Ctx: ctx, Tx: tx}
		p, err := s.postulacionRepo.GetByIDForUpdate(tdbc, id)
		if err != nil {
			return err
		}
		if p == nil {
			return apierr.NotFound("postulacion_not_found")
		}
		c, err := s.cargaRepo.GetByIDForUpdate(tdbc, p.CargaID)
		if err != nil {
			return err
		}
		if c == nil {
			return apierr.NotFound("carga_not_found")
		}

		var caller types.Actor
		switch u.ID {
		case c.OwnerID:
			caller, recipient = types.ActorOwner, p.CamioneroID
		case p.CamioneroID:
			caller, recipient = types.ActorApplicant, c.OwnerID
		default:
			return apierr.NotFound("postulacion_not_found")
		}
		actor, ok := types.TransitionActor(p.Status, to)
		if !ok {
			return errInvalidTransition
		}
		if actor != caller {
			return apierr.Forbidden("wrong_actor")
		}

		if to == types.PostulacionAceptada {
			if c.Status != types.CargaDisponible {
				return apierr.Conflict("carga_not_available", "carga is no longer disponible")
			}
			assigned, err := s.cargaRepo.UpdateIfStatus(tdbc, c.ID, []types.CargaStatus{types.CargaDisponible}, map[string]interface{}{
				"status":              types.CargaAsignada,
				"assigned_carrier_id": p.CamioneroID,
				"assigned_at":         now,
				"updated_at":          now,
			})
			if err != nil {
				return err
			}
			if !assigned {
				return apierr.Conflict("carga_not_available", "carga is no longer disponible")
			}
		}

		var decidedAt *time.Time
		switch to {
		case types.PostulacionAceptada, types.PostulacionRechazada, types.PostulacionCancelada:
			decidedAt = &now
		}
		moved, err := s.postulacionRepo.Transition(tdbc, p.ID, p.Status, to, decidedAt)
		if err != nil {
			return err
		}
		if !moved {
			return errInvalidTransition
		}
		p.Status = to
		if decidedAt != nil {
			p.DecidedAt = decidedAt
		}
		p.UpdatedAt = now

		if _, err := s.notifier.Notify(tdbc, NotificationEvent{
			Type:          postulacionEvent(to),
			UserID:        recipient,
			EntityID:      p.ID,
			Discriminator: now.Format(time.RFC3339Nano),
			Data:          map[string]interface{}{"CargaTitle": c.Title, "ActorName": u.DisplayName()},
		}); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if to == types.PostulacionAceptada {
		s.cargaMarkers.invalidate(ctx)
	}
	s.emit(ctx, recipient, out)
	s.log.Info("Postulacion transitioned", "postulacion_id", out.ID, "status", to)
	return out, nil
}

func (s *postulacionService) emit(ctx context.Context, userID uuid.UUID, p *types.Postulacion) {
	if s.emitter == nil {
		return
	}
	err := s.emitter.Emit(background(ctx), realtime.SSEMessage{
		Channel: realtime.UserChannel(userID),
		Event:   realtime.SSEEventPostulacionStatus,
		Data: map[string]interface{}{
			"postulacion_id": p.ID,
			"carga_id":       p.CargaID,
			"status":         p.Status,
		},
	})
	if err != nil {
		s.log.Warn("SSE emit failed", "postulacion_id", p.ID, "error", err)
	}
}

func (s *postulacionService) Contact(ctx context.Context, id uuid.UUID) (*types.Contact, error) {
	dbc := dbctx.New(ctx)
	u, err := currentUser(dbc, s.userRepo)
	if err != nil {
		return nil, err
	}
	p, err := s.postulacionRepo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apierr.NotFound("postulacion_not_found")
	}
	c, err := s.cargaRepo.GetByID(dbc, p.CargaID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound("carga_not_found")
	}
	var other uuid.UUID
	switch u.ID {
	case c.OwnerID:
		other = p.CamioneroID
	case p.CamioneroID:
		other = c.OwnerID
	default:
		return nil, apierr.Forbidden("not_participant")
	}
	if p.Status != types.PostulacionAceptada {
		return nil, apierr.Forbidden("contact_locked")
	}
	counterpart, err := s.userRepo.GetByID(dbc, other)
	if err != nil {
		return nil, err
	}
	if counterpart == nil {
		return nil, apierr.NotFound("user_not_found")
	}
	contact := counterpart.Contact()
	return &contact, nil
}
