package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/pkg/models"
)

// getOptimizerHandler handles GET /api/v1/optimizer. The singleton row is
// created with defaults on first read.
func (s *Server) getOptimizerHandler(c *gin.Context) {
	cfg, err := s.deps.Optimizer.Get(c.Request.Context())
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// updateOptimizerHandler handles PUT /api/v1/optimizer.
func (s *Server) updateOptimizerHandler(c *gin.Context) {
	var input models.UpdateOptimizerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := s.deps.Optimizer.Update(c.Request.Context(), input)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
