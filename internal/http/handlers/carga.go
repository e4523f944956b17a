package handlers

import (
	"bytes"
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

const maxBulkUploadBytes = 2 << 20

type CargaHandler struct {
	cargaService        services.CargaService
	postulacionService  services.PostulacionService
	calificacionService services.CalificacionService
	matchingService     services.MatchingService
}

func NewCargaHandler(
	cargaService services.CargaService,
	postulacionService services.PostulacionService,
	calificacionService services.CalificacionService,
	matchingService services.MatchingService,
) *CargaHandler {
	return &CargaHandler{
		cargaService:        cargaService,
		postulacionService:  postulacionService,
		calificacionService: calificacionService,
		matchingService:     matchingService,
	}
}

func cargaFilter(c *gin.Context) (repos.CargaFilter, error) {
	f := repos.CargaFilter{
		OriginProvince:      strings.TrimSpace(c.Query("origin_province")),
		DestinationProvince: strings.TrimSpace(c.Query("destination_province")),
		TruckType:           strings.TrimSpace(c.Query("truck_type")),
		Query:               strings.TrimSpace(c.Query("q")),
		Sort:                strings.TrimSpace(c.Query("sort")),
	}
	f.Limit, f.Offset = paging(c)
	var err error
	if f.MinRate, err = queryFloat(c, "min_rate"); err != nil {
		return f, err
	}
	if f.MaxRate, err = queryFloat(c, "max_rate"); err != nil {
		return f, err
	}
	if f.PickupFrom, err = queryDate(c, "pickup_from"); err != nil {
		return f, err
	}
	if f.PickupTo, err = queryDate(c, "pickup_to"); err != nil {
		return f, err
	}
	for _, st := range queryList(c, "status") {
		f.Statuses = append(f.Statuses, types.CargaStatus(st))
	}
	return f, nil
}

// POST /api/cargas
func (h *CargaHandler) Create(c *gin.Context) {
	var req services.CargaInput
	if !bindJSON(c, &req) {
		return
	}
	carga, err := h.cargaService.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"carga": carga})
}

// GET /api/cargas
func (h *CargaHandler) List(c *gin.Context) {
	f, err := cargaFilter(c)
	if err != nil {
		badQuery(c, err)
		return
	}
	page, err := h.cargaService.List(c.Request.Context(), f)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /api/cargas/mine
func (h *CargaHandler) ListMine(c *gin.Context) {
	f, err := cargaFilter(c)
	if err != nil {
		badQuery(c, err)
		return
	}
	page, err := h.cargaService.ListMine(c.Request.Context(), f)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /api/cargas/markers?bbox=south,west,north,east
func (h *CargaHandler) Markers(c *gin.Context) {
	bbox, err := queryBBox(c)
	if err != nil {
		badQuery(c, err)
		return
	}
	f, err := cargaFilter(c)
	if err != nil {
		badQuery(c, err)
		return
	}
	markers, err := h.cargaService.Markers(c.Request.Context(), bbox, f)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"markers": markers})
}

// POST /api/cargas/bulk
// multipart field "file" with the CSV, or the CSV as the request body.
func (h *CargaHandler) BulkUpload(c *gin.Context) {
	raw, err := readUpload(c, "file", maxBulkUploadBytes)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_upload", err)
		return
	}
	res, err := h.cargaService.BulkUpload(c.Request.Context(), bytes.NewReader(raw))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if len(res.Errors) > 0 {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	response.RespondCreated(c, res)
}

// GET /api/cargas/:id
func (h *CargaHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	carga, err := h.cargaService.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"carga": carga})
}

// PATCH /api/cargas/:id
func (h *CargaHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.CargaPatch
	if !bindJSON(c, &req) {
		return
	}
	carga, err := h.cargaService.Update(c.Request.Context(), id, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"carga": carga})
}

// DELETE /api/cargas/:id
func (h *CargaHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.cargaService.Delete(c.Request.Context(), id); err != nil {
		response.RespondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CargaHandler) transition(c *gin.Context, action func(ctx context.Context, id uuid.UUID) (*types.Carga, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	carga, err := action(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"carga": carga})
}

// POST /api/cargas/:id/pause
func (h *CargaHandler) Pause(c *gin.Context) { h.transition(c, h.cargaService.Pause) }

// POST /api/cargas/:id/resume
func (h *CargaHandler) Resume(c *gin.Context) { h.transition(c, h.cargaService.Resume) }

// POST /api/cargas/:id/cancel
func (h *CargaHandler) Cancel(c *gin.Context) { h.transition(c, h.cargaService.Cancel) }

// POST /api/cargas/:id/complete
func (h *CargaHandler) Complete(c *gin.Context) { h.transition(c, h.cargaService.Complete) }

// POST /api/cargas/:id/postulaciones
func (h *CargaHandler) Apply(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.ApplyInput
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.postulacionService.Apply(c.Request.Context(), id, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"postulacion": p})
}

// GET /api/cargas/:id/postulaciones
func (h *CargaHandler) ListPostulaciones(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var statuses []types.PostulacionStatus
	for _, st := range queryList(c, "status") {
		statuses = append(statuses, types.PostulacionStatus(st))
	}
	views, err := h.postulacionService.ListForCarga(c.Request.Context(), id, statuses)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"postulaciones": views})
}

// POST /api/cargas/:id/calificaciones
func (h *CargaHandler) Rate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.RateInput
	if !bindJSON(c, &req) {
		return
	}
	cal, err := h.calificacionService.Rate(c.Request.Context(), id, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"calificacion": cal})
}

// GET /api/cargas/:id/matches
func (h *CargaHandler) Matches(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	matches, err := h.matchingService.SuggestCamionesForCarga(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"matches": matches})
}
