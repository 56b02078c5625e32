// Package api exposes the HTTP surface: request intake and lifecycle,
// agent and document management, the optimizer singleton, live event
// streaming over SSE, and health endpoints.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/events"
	"github.com/atelierhq/atelier/pkg/models"
	"github.com/atelierhq/atelier/pkg/pipeline"
	"github.com/atelierhq/atelier/pkg/queue"
	"github.com/atelierhq/atelier/pkg/services"
)

// RequestStore is the request surface the handlers drive. Satisfied by
// *services.RequestService.
type RequestStore interface {
	Create(ctx context.Context, input models.CreateRequestInput) (*models.GenerationRequest, error)
	Get(ctx context.Context, id string) (*models.GenerationRequest, error)
	List(ctx context.Context, filters models.RequestFilters) (*services.RequestListResponse, error)
	CancelPending(ctx context.Context, id string) (bool, error)
	Continue(ctx context.Context, id string, input models.ContinueRequestInput) (*models.GenerationRequest, error)
}

// ImageStore lists a request's stored images. Satisfied by
// *services.ImageService.
type ImageStore interface {
	ListByRequest(ctx context.Context, requestID string) ([]*models.GeneratedImage, error)
}

// AgentStore is the agent CRUD surface. Satisfied by *services.AgentService.
type AgentStore interface {
	Create(ctx context.Context, input models.CreateAgentInput) (*models.Agent, error)
	Get(ctx context.Context, id string) (*models.Agent, error)
	List(ctx context.Context, organizationID string) ([]*models.Agent, error)
	Update(ctx context.Context, id string, input models.UpdateAgentInput) (*models.Agent, error)
	Delete(ctx context.Context, id string) error
}

// DocumentStore is the document metadata surface. Satisfied by
// *services.DocumentService.
type DocumentStore interface {
	Create(ctx context.Context, agentID, filename, storageKey, contentType string, sizeBytes int64) (*models.AgentDocument, error)
	Get(ctx context.Context, id string) (*models.AgentDocument, error)
	ListByAgent(ctx context.Context, agentID string) ([]*models.AgentDocument, error)
	Delete(ctx context.Context, id string) error
}

// OptimizerStore reads and updates the optimizer singleton. Satisfied by
// *services.OptimizerConfigService.
type OptimizerStore interface {
	Get(ctx context.Context) (*models.OptimizerConfig, error)
	Update(ctx context.Context, input models.UpdateOptimizerInput) (*models.OptimizerConfig, error)
}

// DocumentIndexer chunks, embeds, and persists a document's content.
// Satisfied by *rag.Index.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, doc *models.AgentDocument, content string) (int, error)
}

// ObjectStore uploads and removes stored objects. Satisfied by
// *storage.Store.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
}

// Pool is the worker pool surface used for cancellation and health.
// Satisfied by *queue.WorkerPool.
type Pool interface {
	CancelRequest(requestID string) bool
	Health(ctx context.Context) *queue.PoolHealth
}

var (
	_ RequestStore   = (*services.RequestService)(nil)
	_ ImageStore     = (*services.ImageService)(nil)
	_ AgentStore     = (*services.AgentService)(nil)
	_ DocumentStore  = (*services.DocumentService)(nil)
	_ OptimizerStore = (*services.OptimizerConfigService)(nil)
)

// Deps wires the server's collaborators.
type Deps struct {
	Requests  RequestStore
	Images    ImageStore
	Agents    AgentStore
	Documents DocumentStore
	Optimizer OptimizerStore
	Indexer   DocumentIndexer
	Store     ObjectStore
	Bus       *events.Bus
	Cancels   *pipeline.CancelRegistry
	Pool      Pool
	DB        *pgxpool.Pool
}

// Server is the HTTP API server.
type Server struct {
	cfg  *config.ServerConfig
	deps Deps
	http *http.Server
}

// NewServer creates the API server.
func NewServer(cfg *config.ServerConfig, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps}
}

// Router builds the gin engine with middleware and all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), securityHeaders())

	v1 := router.Group("/api/v1")
	v1.GET("/health", s.healthHandler)
	v1.GET("/health/live", s.livenessHandler)

	authed := v1.Group("", bearerAuth(s.cfg.AuthTokens))
	{
		authed.POST("/generations", s.createGenerationHandler)
		authed.GET("/generations", s.listGenerationsHandler)
		authed.GET("/generations/:id", s.getGenerationHandler)
		authed.DELETE("/generations/:id", s.cancelGenerationHandler)
		authed.POST("/generations/:id/continue", s.continueGenerationHandler)
		authed.GET("/generations/:id/events", s.streamEventsHandler)

		authed.POST("/agents", s.createAgentHandler)
		authed.GET("/agents", s.listAgentsHandler)
		authed.GET("/agents/:id", s.getAgentHandler)
		authed.PUT("/agents/:id", s.updateAgentHandler)
		authed.DELETE("/agents/:id", s.deleteAgentHandler)

		authed.POST("/agents/:id/documents", s.uploadDocumentHandler)
		authed.GET("/agents/:id/documents", s.listDocumentsHandler)
		authed.DELETE("/agents/:id/documents/:docId", s.deleteDocumentHandler)

		authed.GET("/optimizer", s.getOptimizerHandler)
		authed.PUT("/optimizer", s.updateOptimizerHandler)
	}

	return router
}

// Start begins serving in a goroutine and returns immediately.
func (s *Server) Start() {
	s.http = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", s.cfg.Addr())
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server stopped unexpectedly", "error", err)
		}
	}()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
