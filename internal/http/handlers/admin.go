package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/http/response"
	"github.com/fletar/fletar-backend/internal/services"
)

type AdminHandler struct {
	adminService        services.AdminService
	notificationService services.NotificationService
}

func NewAdminHandler(adminService services.AdminService, notificationService services.NotificationService) *AdminHandler {
	return &AdminHandler{adminService: adminService, notificationService: notificationService}
}

// GET /api/admin/users?user_type=&role=&blocked=&q=
func (h *AdminHandler) ListUsers(c *gin.Context) {
	f := repos.UserListFilter{
		UserType: types.UserType(strings.TrimSpace(c.Query("user_type"))),
		Role:     types.Role(strings.TrimSpace(c.Query("role"))),
		Query:    strings.TrimSpace(c.Query("q")),
	}
	f.Limit, f.Offset = paging(c)
	if raw := c.Query("blocked"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			badQuery(c, err)
			return
		}
		f.Blocked = &b
	}
	page, err := h.adminService.ListUsers(c.Request.Context(), f)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, page)
}

// PATCH /api/admin/users/:id
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.AdminUserPatch
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.adminService.UpdateUser(c.Request.Context(), id, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"user": u})
}

// POST /api/admin/users/:id/premium
// body: { "months": 1 }
func (h *AdminHandler) GrantPremium(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Months int `json:"months"`
	}
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.adminService.GrantPremium(c.Request.Context(), id, req.Months)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"user": u})
}

// GET /api/admin/modules
func (h *AdminHandler) ListModules(c *gin.Context) {
	mods, err := h.adminService.ListModules(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"modules": mods})
}

// PUT /api/admin/modules/:key
// body: { "enabled": false }
func (h *AdminHandler) SetModule(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if req.Enabled == nil {
		badQuery(c, errMissing("enabled"))
		return
	}
	m, err := h.adminService.SetModule(c.Request.Context(), c.Param("key"), *req.Enabled)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"module": m})
}

// GET /api/admin/settings
func (h *AdminHandler) ListSettings(c *gin.Context) {
	settings, err := h.adminService.ListSettings(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"settings": settings})
}

// PUT /api/admin/settings
func (h *AdminHandler) UpsertSetting(c *gin.Context) {
	var req services.SettingInput
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.adminService.UpsertSetting(c.Request.Context(), req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"setting": s})
}

// GET /api/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.adminService.Stats(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, stats)
}

// GET /api/admin/monitor/submissions
func (h *AdminHandler) Submissions(c *gin.Context) {
	limit, _ := paging(c)
	report, err := h.adminService.Submissions(c.Request.Context(), limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, report)
}

// GET /api/admin/monitor/queries
func (h *AdminHandler) Queries(c *gin.Context) {
	limit, _ := paging(c)
	report, err := h.adminService.Queries(c.Request.Context(), limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, report)
}

// GET /api/admin/notifications?status=dead
func (h *AdminHandler) ListNotifications(c *gin.Context) {
	limit, offset := paging(c)
	items, total, err := h.notificationService.AdminList(c.Request.Context(), types.NotificationStatus(c.Query("status")), limit, offset)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": items, "total": total})
}

// POST /api/admin/notifications/:id/retry
func (h *AdminHandler) RetryNotification(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notificationService.AdminRetry(c.Request.Context(), id); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// POST /api/admin/notifications/retry-dead
func (h *AdminHandler) RetryDeadNotifications(c *gin.Context) {
	n, err := h.notificationService.RetryAllDead(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"requeued": n})
}
