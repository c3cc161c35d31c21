package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"estate-chat-service/internal/telemetry"
)

// RegisterDebugRoutes wires endpoints that exist only behind the debug flag.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	// Fires one audit event end to end so the bus wiring can be checked
	// without triggering a real failure.
	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
