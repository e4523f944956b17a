package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fletar/fletar-backend/internal/http/response"
	"github.com/fletar/fletar-backend/internal/services"
)

const maxAvatarBytes = 5 << 20

type UserHandler struct {
	userService         services.UserService
	calificacionService services.CalificacionService
	premiumService      services.PremiumService
}

func NewUserHandler(userService services.UserService, calificacionService services.CalificacionService, premiumService services.PremiumService) *UserHandler {
	return &UserHandler{
		userService:         userService,
		calificacionService: calificacionService,
		premiumService:      premiumService,
	}
}

// GET /api/me
func (uh *UserHandler) GetMe(c *gin.Context) {
	me, err := uh.userService.GetMe(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"me": me})
}

// PATCH /api/me
func (uh *UserHandler) UpdateMe(c *gin.Context) {
	var req services.ProfileInput
	if !bindJSON(c, &req) {
		return
	}
	me, err := uh.userService.UpdateProfile(c.Request.Context(), req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"me": me})
}

// POST /api/me/avatar
// multipart field "file", or the raw image as the request body.
func (uh *UserHandler) UploadAvatar(c *gin.Context) {
	raw, err := readUpload(c, "file", maxAvatarBytes)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_upload", err)
		return
	}
	me, err := uh.userService.UploadAvatar(c.Request.Context(), raw)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"me": me})
}

// GET /api/users/:id
func (uh *UserHandler) GetProfile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	profile, err := uh.userService.GetPublicProfile(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"user": profile})
}

// GET /api/users/:id/calificaciones
func (uh *UserHandler) ListCalificaciones(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, offset := paging(c)
	page, err := uh.calificacionService.ListForUser(c.Request.Context(), id, limit, offset)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /api/premium
func (uh *UserHandler) Premium(c *gin.Context) {
	info, err := uh.premiumService.PlanInfo(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, info)
}

// readUpload returns the multipart file under field, or the whole body when
// the request is not multipart.
func readUpload(c *gin.Context, field string, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1024)
	var r io.Reader = c.Request.Body
	if fh, err := c.FormFile(field); err == nil {
		if fh.Size > maxBytes {
			return nil, errors.New("file too large")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	} else if c.ContentType() == "multipart/form-data" {
		return nil, errMissing(field)
	}
	raw, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, errors.New("file too large")
	}
	if len(raw) == 0 {
		return nil, errors.New("empty upload")
	}
	return raw, nil
}
