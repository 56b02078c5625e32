package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/models"
	"github.com/atelierhq/atelier/pkg/services"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker is a single queue worker that polls for and processes generation
// requests.
type Worker struct {
	id       string
	podID    string
	store    Store
	config   *config.QueueConfig
	executor Executor
	pool     RequestRegistry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu                sync.RWMutex
	status            WorkerStatus
	currentRequestID  string
	requestsProcessed int
	lastActivity      time.Time
}

// RequestRegistry is the subset of WorkerPool used by Worker for
// registering the running request's cancel function.
type RequestRegistry interface {
	RegisterRequest(requestID string, cancel context.CancelFunc)
	UnregisterRequest(requestID string)
}

// NewWorker creates a new queue worker.
func NewWorker(id, podID string, store Store, cfg *config.QueueConfig, executor Executor, pool RequestRegistry) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		store:        store,
		config:       cfg,
		executor:     executor,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish its current
// request. It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                w.id,
		Status:            string(w.status),
		CurrentRequestID:  w.currentRequestID,
		RequestsProcessed: w.requestsProcessed,
		LastActivity:      w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoRequestsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing request", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess checks capacity, claims a request, and processes it.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	// 1. Check global capacity (best-effort; racy with concurrent workers
	//    but bounded by WorkerCount and mitigated by poll jitter).
	activeCount, err := w.store.CountActive(ctx)
	if err != nil {
		return fmt.Errorf("checking active requests: %w", err)
	}
	if activeCount >= w.config.MaxConcurrentRequests {
		return ErrAtCapacity
	}

	// 2. Claim the next request. The claim stamps the worker lease and
	//    bumps dispatch_attempts in one statement.
	req, err := w.store.ClaimNext(ctx, w.id)
	if err != nil {
		return fmt.Errorf("claiming request: %w", err)
	}
	if req == nil {
		return ErrNoRequestsAvailable
	}

	log := slog.With("request_id", req.ID, "worker_id", w.id, "attempt", req.DispatchAttempts)
	log.Info("Request claimed")

	w.setStatus(WorkerStatusWorking, req.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	// 3. Request context with the dispatch timeout. The pipeline's own run
	//    budget sits below it, so the pipeline normally terminates itself.
	reqCtx, cancelReq := context.WithTimeout(ctx, w.config.RequestTimeout)
	defer cancelReq()

	// 4. Register the cancel function for API-triggered cancellation.
	w.pool.RegisterRequest(req.ID, cancelReq)
	defer w.pool.UnregisterRequest(req.ID)

	// 5. Heartbeat while executing so the orphan scanner leaves us alone.
	heartbeatCtx, cancelHeartbeat := context.WithCancel(reqCtx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, req.ID)

	// 6. Execute. Nil return means a terminal status was persisted (ACK).
	execErr := w.executor.ExecuteRequest(reqCtx, req.ID)
	cancelHeartbeat()

	if execErr != nil {
		w.nack(req, execErr, log)
	}

	w.mu.Lock()
	w.requestsProcessed++
	w.mu.Unlock()

	log.Info("Request processing complete", "error", execErr)
	return nil
}

// nack handles a failed dispatch: release the claim for redelivery while
// attempts remain, otherwise mark the request FAILED for good. Uses a
// background context — the request context may already be cancelled.
func (w *Worker) nack(req *models.GenerationRequest, execErr error, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if req.DispatchAttempts < w.config.MaxDispatchAttempts {
		log.Warn("Dispatch failed, releasing for redelivery",
			"attempt", req.DispatchAttempts,
			"max_attempts", w.config.MaxDispatchAttempts,
			"error", execErr)
		if err := w.store.Release(ctx, req.ID); err != nil {
			log.Error("Failed to release request", "error", err)
		}
		return
	}

	log.Error("Dispatch attempts exhausted, marking request failed",
		"attempts", req.DispatchAttempts, "error", execErr)
	if err := w.store.Finalize(ctx, req.ID, services.TerminalUpdate{
		Status:       models.StatusFailed,
		Reason:       models.ReasonError,
		ErrorMessage: fmt.Sprintf("dispatch failed after %d attempts: %v", req.DispatchAttempts, execErr),
	}); err != nil {
		log.Error("Failed to finalize request after exhausted attempts", "error", err)
	}
}

// runHeartbeat periodically stamps last_heartbeat_at for orphan detection.
func (w *Worker) runHeartbeat(ctx context.Context, requestID string) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, requestID); err != nil {
				slog.Warn("Heartbeat update failed", "request_id", requestID, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, requestID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentRequestID = requestID
	w.lastActivity = time.Now()
}
