package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/models"
	"github.com/atelierhq/atelier/pkg/services"
)

// fakeStore is an in-memory Store for worker and orphan tests.
type fakeStore struct {
	mu          sync.Mutex
	pending     []*models.GenerationRequest
	released    []string
	finalized   map[string]services.TerminalUpdate
	heartbeats  int
	activeCount int
	queueDepth  int
	orphaned    []*models.GenerationRequest
	byWorker    map[string][]*models.GenerationRequest
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		finalized: make(map[string]services.TerminalUpdate),
		byWorker:  make(map[string][]*models.GenerationRequest),
	}
}

func (s *fakeStore) ClaimNext(_ context.Context, workerID string) (*models.GenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	req := s.pending[0]
	s.pending = s.pending[1:]
	req.WorkerID = workerID
	req.DispatchAttempts++
	return req, nil
}

func (s *fakeStore) Heartbeat(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats++
	return nil
}

func (s *fakeStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, id)
	return nil
}

func (s *fakeStore) Finalize(_ context.Context, id string, update services.TerminalUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized[id] = update
	return nil
}

func (s *fakeStore) CountActive(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCount, nil
}

func (s *fakeStore) QueueDepth(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueDepth, nil
}

func (s *fakeStore) FindOrphaned(context.Context, time.Time) ([]*models.GenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orphaned, nil
}

func (s *fakeStore) FindClaimedByWorker(_ context.Context, workerID string) ([]*models.GenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byWorker[workerID], nil
}

// fakeExecutor records executed requests and returns a configured error.
type fakeExecutor struct {
	mu       sync.Mutex
	executed []string
	err      error
}

func (e *fakeExecutor) ExecuteRequest(_ context.Context, requestID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, requestID)
	return e.err
}

type noopRegistry struct{}

func (noopRegistry) RegisterRequest(string, context.CancelFunc) {}
func (noopRegistry) UnregisterRequest(string)                   {}

func testQueueConfig() *config.QueueConfig {
	cfg := config.DefaultQueueConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.PollIntervalJitter = 0
	cfg.HeartbeatInterval = 10 * time.Millisecond
	return cfg
}

func TestWorkerPollInterval(t *testing.T) {
	cfg := config.DefaultQueueConfig()
	cfg.PollInterval = 1 * time.Second
	cfg.PollIntervalJitter = 500 * time.Millisecond
	w := NewWorker("w-0", "pod", newFakeStore(), cfg, &fakeExecutor{}, noopRegistry{})

	for range 50 {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestWorkerPollIntervalNoJitter(t *testing.T) {
	cfg := config.DefaultQueueConfig()
	cfg.PollInterval = 2 * time.Second
	cfg.PollIntervalJitter = 0
	w := NewWorker("w-0", "pod", newFakeStore(), cfg, &fakeExecutor{}, noopRegistry{})

	assert.Equal(t, 2*time.Second, w.pollInterval())
}

func TestWorkerHealth(t *testing.T) {
	w := NewWorker("w-0", "pod", newFakeStore(), testQueueConfig(), &fakeExecutor{}, noopRegistry{})

	health := w.Health()
	assert.Equal(t, "w-0", health.ID)
	assert.Equal(t, string(WorkerStatusIdle), health.Status)
	assert.Zero(t, health.RequestsProcessed)

	w.setStatus(WorkerStatusWorking, "req-1")
	health = w.Health()
	assert.Equal(t, string(WorkerStatusWorking), health.Status)
	assert.Equal(t, "req-1", health.CurrentRequestID)
}

func TestWorkerProcessesClaimedRequest(t *testing.T) {
	store := newFakeStore()
	store.pending = []*models.GenerationRequest{{ID: "req-1", Status: models.StatusPending}}
	executor := &fakeExecutor{}
	w := NewWorker("w-0", "pod", store, testQueueConfig(), executor, noopRegistry{})

	err := w.pollAndProcess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"req-1"}, executor.executed)
	assert.Empty(t, store.released)
	assert.Empty(t, store.finalized)
}

func TestWorkerEmptyQueue(t *testing.T) {
	w := NewWorker("w-0", "pod", newFakeStore(), testQueueConfig(), &fakeExecutor{}, noopRegistry{})

	err := w.pollAndProcess(context.Background())
	assert.ErrorIs(t, err, ErrNoRequestsAvailable)
}

func TestWorkerAtCapacity(t *testing.T) {
	store := newFakeStore()
	store.pending = []*models.GenerationRequest{{ID: "req-1"}}
	store.activeCount = 99
	executor := &fakeExecutor{}
	w := NewWorker("w-0", "pod", store, testQueueConfig(), executor, noopRegistry{})

	err := w.pollAndProcess(context.Background())
	assert.ErrorIs(t, err, ErrAtCapacity)
	assert.Empty(t, executor.executed)
}

func TestWorkerNackReleasesWhileAttemptsRemain(t *testing.T) {
	store := newFakeStore()
	store.pending = []*models.GenerationRequest{{ID: "req-1", DispatchAttempts: 0}}
	executor := &fakeExecutor{err: errors.New("backend exploded")}
	w := NewWorker("w-0", "pod", store, testQueueConfig(), executor, noopRegistry{})

	err := w.pollAndProcess(context.Background())
	require.NoError(t, err) // the poll itself succeeded; the nack was handled
	assert.Equal(t, []string{"req-1"}, store.released)
	assert.Empty(t, store.finalized)
}

func TestWorkerNackFailsAfterExhaustedAttempts(t *testing.T) {
	store := newFakeStore()
	// Claim bumps attempts to MaxDispatchAttempts, so this dispatch is the last.
	store.pending = []*models.GenerationRequest{{ID: "req-1", DispatchAttempts: 2}}
	cfg := testQueueConfig()
	cfg.MaxDispatchAttempts = 3
	executor := &fakeExecutor{err: errors.New("backend exploded")}
	w := NewWorker("w-0", "pod", store, cfg, executor, noopRegistry{})

	err := w.pollAndProcess(context.Background())
	require.NoError(t, err)
	assert.Empty(t, store.released)

	update, ok := store.finalized["req-1"]
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, update.Status)
	assert.Equal(t, models.ReasonError, update.Reason)
	assert.Contains(t, update.ErrorMessage, "backend exploded")
}

func TestOrphanRecoveryReleasesForResume(t *testing.T) {
	store := newFakeStore()
	cfg := testQueueConfig()
	req := &models.GenerationRequest{ID: "req-1", DispatchAttempts: 1, CurrentIteration: 2}

	err := recoverOrphan(context.Background(), store, req, cfg, "stale heartbeat")
	require.NoError(t, err)
	assert.Equal(t, []string{"req-1"}, store.released)
	assert.Empty(t, store.finalized)
}

func TestOrphanRecoveryFailsExhaustedRequest(t *testing.T) {
	store := newFakeStore()
	cfg := testQueueConfig()
	req := &models.GenerationRequest{ID: "req-1", DispatchAttempts: cfg.MaxDispatchAttempts}

	err := recoverOrphan(context.Background(), store, req, cfg, "stale heartbeat")
	require.NoError(t, err)
	assert.Empty(t, store.released)
	assert.Equal(t, models.StatusFailed, store.finalized["req-1"].Status)
}

func TestCleanupStartupOrphans(t *testing.T) {
	store := newFakeStore()
	cfg := testQueueConfig()
	cfg.WorkerCount = 2
	pool := NewWorkerPool("pod-a", store, cfg, nil)

	store.byWorker["pod-a-worker-0"] = []*models.GenerationRequest{
		{ID: "req-1", DispatchAttempts: 1, WorkerID: "pod-a-worker-0"},
	}
	store.byWorker["pod-a-worker-1"] = []*models.GenerationRequest{
		{ID: "req-2", DispatchAttempts: cfg.MaxDispatchAttempts, WorkerID: "pod-a-worker-1"},
	}

	err := CleanupStartupOrphans(context.Background(), store, pool)
	require.NoError(t, err)
	assert.Equal(t, []string{"req-1"}, store.released)
	assert.Equal(t, models.StatusFailed, store.finalized["req-2"].Status)
}
