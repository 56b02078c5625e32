package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/pkg/database"
)

// healthHandler handles GET /api/v1/health: database connectivity with
// pool statistics, plus worker pool health when a pool runs in-process.
func (s *Server) healthHandler(c *gin.Context) {
	response := gin.H{"status": "healthy"}
	code := http.StatusOK

	if s.deps.DB != nil {
		dbHealth, err := database.Health(c.Request.Context(), s.deps.DB)
		response["database"] = dbHealth
		if err != nil {
			response["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	if s.deps.Pool != nil {
		response["workers"] = s.deps.Pool.Health(c.Request.Context())
	}

	c.JSON(code, response)
}

// livenessHandler handles GET /api/v1/health/live: process liveness only,
// no dependency checks.
func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}
