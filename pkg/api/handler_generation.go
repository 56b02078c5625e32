package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/pkg/models"
)

// GenerationDetail is the read shape for one request: the full row plus
// its derived best score and stored images.
type GenerationDetail struct {
	*models.GenerationRequest
	BestScore float64                  `json:"bestScore"`
	Images    []*models.GeneratedImage `json:"images"`
}

// createGenerationHandler handles POST /api/v1/generations. A created
// request is PENDING, which is what enqueues it: workers claim PENDING
// rows in FIFO order.
func (s *Server) createGenerationHandler(c *gin.Context) {
	var input models.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := s.deps.Requests.Create(c.Request.Context(), input)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// listGenerationsHandler handles GET /api/v1/generations.
func (s *Server) listGenerationsHandler(c *gin.Context) {
	organizationID := c.Query("organizationId")
	if organizationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organizationId query parameter is required"})
		return
	}

	filters := models.RequestFilters{
		OrganizationID: organizationID,
		Limit:          25,
	}
	if v := c.Query("status"); v != "" {
		switch status := models.RequestStatus(v); status {
		case models.StatusPending, models.StatusOptimizing, models.StatusGenerating,
			models.StatusEvaluating, models.StatusCompleted, models.StatusFailed,
			models.StatusCancelled:
			filters.Status = status
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + v})
			return
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			filters.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	result, err := s.deps.Requests.List(c.Request.Context(), filters)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// getGenerationHandler handles GET /api/v1/generations/:id.
func (s *Server) getGenerationHandler(c *gin.Context) {
	id := c.Param("id")

	req, err := s.deps.Requests.Get(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	images, err := s.deps.Images.ListByRequest(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, GenerationDetail{
		GenerationRequest: req,
		BestScore:         req.BestScore(),
		Images:            images,
	})
}

// cancelGenerationHandler handles DELETE /api/v1/generations/:id.
//
// Cancellation is cooperative: a still-queued request is flipped to
// CANCELLED directly; a running one is flagged in the registry and its
// context cancelled, and the pipeline persists CANCELLED at the next
// iteration boundary.
func (s *Server) cancelGenerationHandler(c *gin.Context) {
	id := c.Param("id")

	req, err := s.deps.Requests.Get(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if req.Status.IsTerminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "request already reached a terminal status", "status": req.Status})
		return
	}

	// Flag first so a worker that claims the row between our check and the
	// direct flip still observes the cancellation.
	s.deps.Cancels.Add(id)

	flipped, err := s.deps.Requests.CancelPending(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if flipped {
		s.deps.Cancels.Remove(id)
		c.JSON(http.StatusOK, gin.H{"status": models.StatusCancelled, "cancelled": "immediate"})
		return
	}

	// Running somewhere: cancel the context if it is on this pod.
	if s.deps.Pool != nil {
		s.deps.Pool.CancelRequest(id)
	}
	c.JSON(http.StatusAccepted, gin.H{"status": req.Status, "cancelled": "requested"})
}

// continueGenerationHandler handles POST /api/v1/generations/:id/continue.
func (s *Server) continueGenerationHandler(c *gin.Context) {
	id := c.Param("id")

	var input models.ContinueRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := s.deps.Requests.Continue(c.Request.Context(), id, input)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
