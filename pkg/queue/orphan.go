package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/models"
	"github.com/atelierhq/atelier/pkg/services"
)

// orphanState tracks orphan detection metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically scans for orphaned requests.
// All pods run this independently — operations are idempotent.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("Orphan detection failed", "error", err)
			}
		}
	}
}

// detectAndRecoverOrphans finds claimed requests with stale heartbeats and
// re-queues them for resume from their last committed iteration, or marks
// them FAILED once dispatch attempts are exhausted.
func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) error {
	threshold := time.Now().Add(-p.config.OrphanThreshold)

	orphans, err := p.store.FindOrphaned(ctx, threshold)
	if err != nil {
		return fmt.Errorf("failed to query orphaned requests: %w", err)
	}

	recovered := 0
	if len(orphans) > 0 {
		slog.Warn("Detected orphaned requests", "count", len(orphans))
		for _, req := range orphans {
			if err := recoverOrphan(ctx, p.store, req, p.config, "stale heartbeat"); err != nil {
				slog.Error("Failed to recover orphaned request",
					"request_id", req.ID, "error", err)
				continue
			}
			recovered++
		}
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += recovered
	p.orphans.mu.Unlock()

	return nil
}

// recoverOrphan releases a single orphaned request back to PENDING for
// redelivery while attempts remain, otherwise finalizes it as FAILED. The
// pipeline is resumable: a re-dispatched request continues from
// currentIteration+1 against the persisted snapshots.
func recoverOrphan(ctx context.Context, store Store, req *models.GenerationRequest, cfg *config.QueueConfig, cause string) error {
	log := slog.With("request_id", req.ID, "old_worker_id", req.WorkerID, "attempts", req.DispatchAttempts)

	if req.DispatchAttempts >= cfg.MaxDispatchAttempts {
		if err := store.Finalize(ctx, req.ID, services.TerminalUpdate{
			Status:       models.StatusFailed,
			Reason:       models.ReasonError,
			ErrorMessage: fmt.Sprintf("orphaned (%s) with dispatch attempts exhausted", cause),
		}); err != nil {
			return fmt.Errorf("failed to mark orphan as failed: %w", err)
		}
		log.Warn("Orphaned request marked failed", "cause", cause)
		return nil
	}

	if err := store.Release(ctx, req.ID); err != nil {
		return fmt.Errorf("failed to release orphan: %w", err)
	}
	log.Warn("Orphaned request re-queued for resume",
		"cause", cause, "resume_from_iteration", req.CurrentIteration+1)
	return nil
}

// CleanupStartupOrphans performs a one-time recovery of requests still
// claimed by this pod's workers from a previous run that crashed. Called
// once during startup, before the worker pool begins processing.
func CleanupStartupOrphans(ctx context.Context, store Store, pool *WorkerPool) error {
	for _, workerID := range pool.WorkerIDs() {
		orphans, err := store.FindClaimedByWorker(ctx, workerID)
		if err != nil {
			return fmt.Errorf("failed to query startup orphans: %w", err)
		}
		for _, req := range orphans {
			if err := recoverOrphan(ctx, store, req, pool.config, "pod restarted mid-run"); err != nil {
				slog.Error("Failed to recover startup orphan",
					"request_id", req.ID, "error", err)
				continue
			}
			slog.Info("Startup orphan recovered", "request_id", req.ID, "worker_id", workerID)
		}
	}
	return nil
}
