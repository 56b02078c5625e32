package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/pkg/config"
)

func testRun(attempts int) *run {
	return &run{
		Executor: NewExecutor(config.PipelineConfig{
			RetryAttempts:  attempts,
			RetryBaseDelay: time.Millisecond,
		}, Deps{}),
		logger: slog.Default(),
	}
}

func TestWithRetrySucceedsFirstTry(t *testing.T) {
	r := testRun(3)
	calls := 0

	err := r.withRetry(context.Background(), "op", func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Zero(t, r.retries.Load())
}

func TestWithRetryRecoversAfterFailures(t *testing.T) {
	r := testRun(3)
	calls := 0

	err := r.withRetry(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(2), r.retries.Load())
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	r := testRun(3)
	cause := errors.New("persistent")
	calls := 0

	err := r.withRetry(context.Background(), "image upload", func() error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "image upload failed after 3 attempts")
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(2), r.retries.Load())
}

func TestWithRetryStopsOnCancelledContext(t *testing.T) {
	r := testRun(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	err := r.withRetry(ctx, "op", func() error {
		calls++
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithRetryTreatsZeroAttemptsAsOne(t *testing.T) {
	r := testRun(0)
	calls := 0

	err := r.withRetry(context.Background(), "op", func() error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
