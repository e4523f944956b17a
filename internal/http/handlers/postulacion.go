package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/http/response"
	"github.com/fletar/fletar-backend/internal/services"
)

type PostulacionHandler struct {
	postulacionService services.PostulacionService
}

func NewPostulacionHandler(postulacionService services.PostulacionService) *PostulacionHandler {
	return &PostulacionHandler{postulacionService: postulacionService}
}

// GET /api/postulaciones/mine
func (h *PostulacionHandler) ListMine(c *gin.Context) {
	var statuses []types.PostulacionStatus
	for _, st := range queryList(c, "status") {
		statuses = append(statuses, types.PostulacionStatus(st))
	}
	limit, offset := paging(c)
	page, err := h.postulacionService.ListMine(c.Request.Context(), statuses, limit, offset)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, page)
}

func (h *PostulacionHandler) transition(c *gin.Context, action func(ctx context.Context, id uuid.UUID) (*types.Postulacion, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := action(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"postulacion": p})
}

// POST /api/postulaciones/:id/accept
func (h *PostulacionHandler) Accept(c *gin.Context) { h.transition(c, h.postulacionService.Accept) }

// POST /api/postulaciones/:id/reject
func (h *PostulacionHandler) Reject(c *gin.Context) { h.transition(c, h.postulacionService.Reject) }

// POST /api/postulaciones/:id/pause
func (h *PostulacionHandler) Pause(c *gin.Context) { h.transition(c, h.postulacionService.Pause) }

// POST /api/postulaciones/:id/resume
func (h *PostulacionHandler) Resume(c *gin.Context) { h.transition(c, h.postulacionService.Resume) }

// POST /api/postulaciones/:id/cancel
func (h *PostulacionHandler) Cancel(c *gin.Context) { h.transition(c, h.postulacionService.Cancel) }

// GET /api/postulaciones/:id/contact
func (h *PostulacionHandler) Contact(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	contact, err := h.postulacionService.Contact(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"contact": contact})
}
