package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryExecutor_SuccessFirstTry(t *testing.T) {
	executor := NewRetryExecutor(fastRetryConfig(3), quietLogger())
	calls := 0

	err := executor.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExecutor_RetriesUnavailable(t *testing.T) {
	executor := NewRetryExecutor(fastRetryConfig(3), quietLogger())
	calls := 0

	err := executor.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Unavailable("warming up")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExecutor_InvalidArgumentNotRetried(t *testing.T) {
	executor := NewRetryExecutor(fastRetryConfig(5), quietLogger())
	calls := 0

	err := executor.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return InvalidArgument("parameter %q must be an integer", "threshold_ms")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, IsRetryableError(err))
	assert.Equal(t, FaultInvalidArgument, FaultCodeOf(err))
}

func TestRetryExecutor_GivesUpAfterMaxAttempts(t *testing.T) {
	executor := NewRetryExecutor(fastRetryConfig(2), quietLogger())
	calls := 0

	err := executor.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return Internal("analysis failed", errors.New("boom"))
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, IsRetryableError(err))
	assert.Equal(t, FaultInternal, FaultCodeOf(err))
}

func TestRetryExecutor_CustomCondition(t *testing.T) {
	config := fastRetryConfig(3)
	config.RetryCondition = func(err error) bool { return false }
	executor := NewRetryExecutor(config, quietLogger())
	calls := 0

	_ = executor.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return Unavailable("busy")
	})

	assert.Equal(t, 1, calls)
}

func TestRetryExecutor_ContextCancelledDuringBackoff(t *testing.T) {
	config := fastRetryConfig(5)
	config.InitialDelay = time.Second
	config.MaxDelay = time.Second
	executor := NewRetryExecutor(config, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := executor.Execute(ctx, func(ctx context.Context) error {
		return Unavailable("busy")
	})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, FaultUnavailable, FaultCodeOf(err))
}

func TestExponentialBackoff(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, ExponentialBackoff(1, 10*time.Millisecond, time.Second, 2, false))
	assert.Equal(t, 40*time.Millisecond, ExponentialBackoff(3, 10*time.Millisecond, time.Second, 2, false))
	assert.Equal(t, 50*time.Millisecond, ExponentialBackoff(10, 10*time.Millisecond, 50*time.Millisecond, 2, false))

	jittered := ExponentialBackoff(1, 100*time.Millisecond, time.Second, 2, true)
	assert.GreaterOrEqual(t, jittered, 100*time.Millisecond)
	assert.LessOrEqual(t, jittered, 110*time.Millisecond)
}
