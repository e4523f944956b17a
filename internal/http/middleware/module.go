package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fletar/fletar-backend/internal/http/response"
	"github.com/fletar/fletar-backend/internal/services"
)

// RequireModule answers 403 module_disabled while the module is switched off.
func RequireModule(modules services.ModuleService, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := modules.Require(c.Request.Context(), key); err != nil {
			response.RespondErr(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
