package config

import "time"

// QueueConfig contains queue and worker pool configuration.
// These values control how requests are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica.
	// Each worker independently polls and processes requests.
	WorkerCount int

	// MaxConcurrentRequests is the global limit of requests being processed
	// across ALL replicas. Enforced by database COUNT(*) check.
	MaxConcurrentRequests int

	// PollInterval is the base interval for checking pending requests.
	PollInterval time.Duration

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration

	// RequestTimeout is the hard cap on a single dispatch. It sits above the
	// pipeline's own run budget so the pipeline terminates itself first.
	RequestTimeout time.Duration

	// GracefulShutdownTimeout is the max time to wait for active requests
	// to complete during shutdown.
	GracefulShutdownTimeout time.Duration

	// HeartbeatInterval is how often a worker stamps last_heartbeat_at on
	// the request it is processing. Must be well below OrphanThreshold.
	HeartbeatInterval time.Duration

	// OrphanDetectionInterval is how often to scan for orphaned requests.
	OrphanDetectionInterval time.Duration

	// OrphanThreshold is how long a request can go without a heartbeat
	// before it is considered orphaned.
	OrphanThreshold time.Duration

	// MaxDispatchAttempts bounds at-least-once redelivery. Once exhausted
	// the request is marked FAILED instead of re-queued.
	MaxDispatchAttempts int
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             3,
		MaxConcurrentRequests:   6,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		RequestTimeout:          12 * time.Minute,
		GracefulShutdownTimeout: 12 * time.Minute,
		HeartbeatInterval:       30 * time.Second,
		OrphanDetectionInterval: 1 * time.Minute,
		OrphanThreshold:         2 * time.Minute,
		MaxDispatchAttempts:     3,
	}
}

// LoadQueueConfigFromEnv returns defaults overridden by QUEUE_* variables.
func LoadQueueConfigFromEnv() *QueueConfig {
	cfg := DefaultQueueConfig()
	cfg.WorkerCount = getEnvInt("QUEUE_WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxConcurrentRequests = getEnvInt("QUEUE_MAX_CONCURRENT_REQUESTS", cfg.MaxConcurrentRequests)
	cfg.PollInterval = getEnvDuration("QUEUE_POLL_INTERVAL", cfg.PollInterval)
	cfg.PollIntervalJitter = getEnvDuration("QUEUE_POLL_INTERVAL_JITTER", cfg.PollIntervalJitter)
	cfg.RequestTimeout = getEnvDuration("QUEUE_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.GracefulShutdownTimeout = getEnvDuration("QUEUE_GRACEFUL_SHUTDOWN_TIMEOUT", cfg.GracefulShutdownTimeout)
	cfg.HeartbeatInterval = getEnvDuration("QUEUE_HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	cfg.OrphanDetectionInterval = getEnvDuration("QUEUE_ORPHAN_DETECTION_INTERVAL", cfg.OrphanDetectionInterval)
	cfg.OrphanThreshold = getEnvDuration("QUEUE_ORPHAN_THRESHOLD", cfg.OrphanThreshold)
	cfg.MaxDispatchAttempts = getEnvInt("QUEUE_MAX_DISPATCH_ATTEMPTS", cfg.MaxDispatchAttempts)
	return cfg
}
