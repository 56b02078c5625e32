package api

import (
	"context"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/events"
	"github.com/atelierhq/atelier/pkg/models"
	"github.com/atelierhq/atelier/pkg/pipeline"
	"github.com/atelierhq/atelier/pkg/queue"
	"github.com/atelierhq/atelier/pkg/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRequestStore struct {
	requests      map[string]*models.GenerationRequest
	cancelPending bool
	createErr     error
	continueErr   error
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{requests: map[string]*models.GenerationRequest{}}
}

func (f *fakeRequestStore) Create(ctx context.Context, input models.CreateRequestInput) (*models.GenerationRequest, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	req := &models.GenerationRequest{
		ID:             "req-1",
		OrganizationID: input.OrganizationID,
		Brief:          input.Brief,
		Status:         models.StatusPending,
	}
	f.requests[req.ID] = req
	return req, nil
}

func (f *fakeRequestStore) Get(ctx context.Context, id string) (*models.GenerationRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return req, nil
}

func (f *fakeRequestStore) List(ctx context.Context, filters models.RequestFilters) (*services.RequestListResponse, error) {
	items := []*models.GenerationRequest{}
	for _, req := range f.requests {
		if req.OrganizationID == filters.OrganizationID {
			items = append(items, req)
		}
	}
	return &services.RequestListResponse{Requests: items, TotalCount: len(items), Limit: filters.Limit, Offset: filters.Offset}, nil
}

func (f *fakeRequestStore) CancelPending(ctx context.Context, id string) (bool, error) {
	if f.cancelPending {
		f.requests[id].Status = models.StatusCancelled
	}
	return f.cancelPending, nil
}

func (f *fakeRequestStore) Continue(ctx context.Context, id string, input models.ContinueRequestInput) (*models.GenerationRequest, error) {
	if f.continueErr != nil {
		return nil, f.continueErr
	}
	req, ok := f.requests[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	req.Status = models.StatusPending
	return req, nil
}

type fakeImageStore struct {
	images map[string][]*models.GeneratedImage
}

func (f *fakeImageStore) ListByRequest(ctx context.Context, requestID string) ([]*models.GeneratedImage, error) {
	return f.images[requestID], nil
}

type fakeAgentStore struct {
	agents map[string]*models.Agent
}

func newFakeAgentStore() *fakeAgentStore {
	return &fakeAgentStore{agents: map[string]*models.Agent{}}
}

func (f *fakeAgentStore) Create(ctx context.Context, input models.CreateAgentInput) (*models.Agent, error) {
	if input.Name == "" {
		return nil, services.NewValidationError("name", "required")
	}
	agent := &models.Agent{ID: "agent-1", OrganizationID: input.OrganizationID, Name: input.Name}
	f.agents[agent.ID] = agent
	return agent, nil
}

func (f *fakeAgentStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	agent, ok := f.agents[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return agent, nil
}

func (f *fakeAgentStore) List(ctx context.Context, organizationID string) ([]*models.Agent, error) {
	agents := []*models.Agent{}
	for _, agent := range f.agents {
		if agent.OrganizationID == organizationID {
			agents = append(agents, agent)
		}
	}
	return agents, nil
}

func (f *fakeAgentStore) Update(ctx context.Context, id string, input models.UpdateAgentInput) (*models.Agent, error) {
	agent, ok := f.agents[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return agent, nil
}

func (f *fakeAgentStore) Delete(ctx context.Context, id string) error {
	if _, ok := f.agents[id]; !ok {
		return services.ErrNotFound
	}
	delete(f.agents, id)
	return nil
}

type fakePool struct {
	cancelled []string
	onPod     bool
}

func (f *fakePool) CancelRequest(requestID string) bool {
	f.cancelled = append(f.cancelled, requestID)
	return f.onPod
}

func (f *fakePool) Health(ctx context.Context) *queue.PoolHealth {
	return &queue.PoolHealth{IsHealthy: true, PodID: "test-pod"}
}

type testDeps struct {
	requests *fakeRequestStore
	images   *fakeImageStore
	agents   *fakeAgentStore
	pool     *fakePool
	bus      *events.Bus
	cancels  *pipeline.CancelRegistry
}

func newTestServer(tokens ...string) (*Server, *testDeps) {
	deps := &testDeps{
		requests: newFakeRequestStore(),
		images:   &fakeImageStore{images: map[string][]*models.GeneratedImage{}},
		agents:   newFakeAgentStore(),
		pool:     &fakePool{},
		bus:      events.NewBus(),
		cancels:  pipeline.NewCancelRegistry(),
	}
	cfg := &config.ServerConfig{Host: "127.0.0.1", Port: 0, AuthTokens: tokens}
	server := NewServer(cfg, Deps{
		Requests: deps.requests,
		Images:   deps.images,
		Agents:   deps.agents,
		Bus:      deps.bus,
		Cancels:  deps.cancels,
		Pool:     deps.pool,
	})
	return server, deps
}

func performRequest(s *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req = httptest.NewRequest(method, target, nil)
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}
