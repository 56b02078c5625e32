// Package queue provides the durable request queue: a worker pool that
// claims pending generation requests with FOR UPDATE SKIP LOCKED, drives
// them through the pipeline executor, and recovers orphaned claims after
// crashes. The request row doubles as the queue entry, so delivery is
// at-least-once and survives restarts.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/atelierhq/atelier/pkg/models"
	"github.com/atelierhq/atelier/pkg/services"
)

// Sentinel errors for queue operations.
var (
	// ErrNoRequestsAvailable indicates no pending requests are in the queue.
	ErrNoRequestsAvailable = errors.New("no requests available")

	// ErrAtCapacity indicates the global concurrent request limit has been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// Executor runs one generation request to a terminal status.
//
// The executor owns the entire request lifecycle internally: iteration
// loop, status updates, event emission, and terminal persistence. A nil
// return means a terminal status was persisted (ACK); an error means this
// dispatch failed before reaching one and the request should be
// redelivered (NACK).
type Executor interface {
	ExecuteRequest(ctx context.Context, requestID string) error
}

// Store is the persistence surface the queue drives. Satisfied by
// *services.RequestService.
type Store interface {
	ClaimNext(ctx context.Context, workerID string) (*models.GenerationRequest, error)
	Heartbeat(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
	Finalize(ctx context.Context, id string, update services.TerminalUpdate) error
	CountActive(ctx context.Context) (int, error)
	QueueDepth(ctx context.Context) (int, error)
	FindOrphaned(ctx context.Context, heartbeatBefore time.Time) ([]*models.GenerationRequest, error)
	FindClaimedByWorker(ctx context.Context, workerID string) ([]*models.GenerationRequest, error)
}

var _ Store = (*services.RequestService)(nil)

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy        bool           `json:"isHealthy"`
	DBReachable      bool           `json:"dbReachable"`
	DBError          string         `json:"dbError,omitempty"`
	PodID            string         `json:"podId"`
	ActiveWorkers    int            `json:"activeWorkers"`
	TotalWorkers     int            `json:"totalWorkers"`
	ActiveRequests   int            `json:"activeRequests"`
	MaxConcurrent    int            `json:"maxConcurrent"`
	QueueDepth       int            `json:"queueDepth"`
	WorkerStats      []WorkerHealth `json:"workerStats"`
	LastOrphanScan   time.Time      `json:"lastOrphanScan"`
	OrphansRecovered int            `json:"orphansRecovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"` // "idle" or "working"
	CurrentRequestID  string    `json:"currentRequestId,omitempty"`
	RequestsProcessed int       `json:"requestsProcessed"`
	LastActivity      time.Time `json:"lastActivity"`
}
