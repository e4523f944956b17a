package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/fletar/fletar-backend/internal/catalog"
	"github.com/fletar/fletar-backend/internal/http/response"
	"github.com/fletar/fletar-backend/internal/services"
)

type CatalogHandler struct {
	catalog *catalog.Catalog
	modules services.ModuleService
}

func NewCatalogHandler(cat *catalog.Catalog, modules services.ModuleService) *CatalogHandler {
	return &CatalogHandler{catalog: cat, modules: modules}
}

// GET /api/catalog
// Reference data for clients plus which modules are switched on.
func (h *CatalogHandler) Get(c *gin.Context) {
	mods, err := h.modules.List(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	enabled := make(map[string]bool, len(mods))
	for _, m := range mods {
		enabled[m.Key] = m.Enabled
	}
	response.RespondOK(c, gin.H{
		"catalog": h.catalog,
		"modules": enabled,
	})
}
