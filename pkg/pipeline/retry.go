package pipeline

import (
	"context"
	"fmt"
	"time"
)

// withRetry runs fn up to cfg.RetryAttempts times, doubling the sleep
// between attempts starting from cfg.RetryBaseDelay. Each re-attempt
// increments the run's retry counter, which is reported in the final
// summary event. The error of the last attempt is returned when every
// attempt fails.
func (r *run) withRetry(ctx context.Context, operation string, fn func() error) error {
	attempts := r.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := r.cfg.RetryBaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		r.retries.Add(1)
		r.logger.Warn("Transient failure, retrying",
			"operation", operation,
			"attempt", attempt,
			"of", attempts,
			"delay", delay,
			"error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, err)
}
