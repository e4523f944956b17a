package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/http/response"
	"github.com/fletar/fletar-backend/internal/services"
)

type CamionHandler struct {
	camionService   services.CamionService
	matchingService services.MatchingService
}

func NewCamionHandler(camionService services.CamionService, matchingService services.MatchingService) *CamionHandler {
	return &CamionHandler{camionService: camionService, matchingService: matchingService}
}

func camionFilter(c *gin.Context) (repos.CamionFilter, error) {
	f := repos.CamionFilter{
		Province:  strings.TrimSpace(c.Query("province")),
		TruckType: strings.TrimSpace(c.Query("truck_type")),
	}
	f.Limit, f.Offset = paging(c)
	var err error
	if f.MinCapacity, err = queryFloat(c, "min_capacity"); err != nil {
		return f, err
	}
	if f.AvailableOn, err = queryDate(c, "available_on"); err != nil {
		return f, err
	}
	for _, st := range queryList(c, "status") {
		f.Statuses = append(f.Statuses, types.CamionStatus(st))
	}
	return f, nil
}

// POST /api/camiones
func (h *CamionHandler) Create(c *gin.Context) {
	var req services.CamionInput
	if !bindJSON(c, &req) {
		return
	}
	camion, err := h.camionService.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"camion": camion})
}

// GET /api/camiones
func (h *CamionHandler) List(c *gin.Context) {
	f, err := camionFilter(c)
	if err != nil {
		badQuery(c, err)
		return
	}
	page, err := h.camionService.List(c.Request.Context(), f)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /api/camiones/mine
func (h *CamionHandler) ListMine(c *gin.Context) {
	f, err := camionFilter(c)
	if err != nil {
		badQuery(c, err)
		return
	}
	page, err := h.camionService.ListMine(c.Request.Context(), f)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /api/camiones/markers?bbox=south,west,north,east
func (h *CamionHandler) Markers(c *gin.Context) {
	bbox, err := queryBBox(c)
	if err != nil {
		badQuery(c, err)
		return
	}
	f, err := camionFilter(c)
	if err != nil {
		badQuery(c, err)
		return
	}
	markers, err := h.camionService.Markers(c.Request.Context(), bbox, f)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"markers": markers})
}

// GET /api/camiones/:id
func (h *CamionHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	camion, err := h.camionService.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"camion": camion})
}

// PATCH /api/camiones/:id
func (h *CamionHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.CamionPatch
	if !bindJSON(c, &req) {
		return
	}
	camion, err := h.camionService.Update(c.Request.Context(), id, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"camion": camion})
}

// DELETE /api/camiones/:id
func (h *CamionHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.camionService.Delete(c.Request.Context(), id); err != nil {
		response.RespondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CamionHandler) transition(c *gin.Context, action func(ctx context.Context, id uuid.UUID) (*types.CamionDisponible, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	camion, err := action(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"camion": camion})
}

// POST /api/camiones/:id/pause
func (h *CamionHandler) Pause(c *gin.Context) { h.transition(c, h.camionService.Pause) }

// POST /api/camiones/:id/resume
func (h *CamionHandler) Resume(c *gin.Context) { h.transition(c, h.camionService.Resume) }

// POST /api/camiones/:id/contact
func (h *CamionHandler) Contact(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	contact, err := h.camionService.Contact(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"contact": contact})
}

// GET /api/camiones/:id/matches
func (h *CamionHandler) Matches(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	matches, err := h.matchingService.SuggestCargasForCamion(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"matches": matches})
}
