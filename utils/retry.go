package utils

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retry mechanisms
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first
	MaxAttempts int
	// InitialDelay is the initial delay between retries
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64
	// Jitter adds up to 10% randomness to each delay
	Jitter bool
	// RetryCondition decides whether an error is worth another attempt.
	// Nil means IsRetryableFault.
	RetryCondition func(error) bool
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryableError wraps the final error of a retried operation
type RetryableError struct {
	Err       error
	Retryable bool
	Attempt   int
}

// Error implements the error interface
func (e *RetryableError) Error() string {
	return fmt.Sprintf("attempt %d: %v", e.Attempt, e.Err)
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryableError reports whether the executor gave up on a retryable error
func IsRetryableError(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}
	return false
}

// RetryExecutor handles retry logic
type RetryExecutor struct {
	config *RetryConfig
	logger *Logger
}

// NewRetryExecutor creates a new retry executor
func NewRetryExecutor(config *RetryConfig, logger *Logger) *RetryExecutor {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if logger == nil {
		logger = GetLogger()
	}

	return &RetryExecutor{
		config: config,
		logger: logger,
	}
}

// Execute runs operation until it succeeds, returns a non-retryable error,
// or runs out of attempts.
func (re *RetryExecutor) Execute(ctx context.Context, operation func(context.Context) error) error {
	var lastErr error
	log := re.logger.WithSource("retry_executor")

	for attempt := 1; attempt <= re.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return &RetryableError{Err: lastErr, Retryable: true, Attempt: attempt - 1}
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info("Operation succeeded after retry", map[string]interface{}{
					"attempt":      attempt,
					"max_attempts": re.config.MaxAttempts,
				})
			}
			return nil
		}

		lastErr = err

		if !re.isRetryable(err) {
			log.Debug("Error is not retryable", map[string]interface{}{
				"error":   err.Error(),
				"attempt": attempt,
			})
			return &RetryableError{Err: err, Retryable: false, Attempt: attempt}
		}

		if attempt == re.config.MaxAttempts {
			break
		}

		delay := re.calculateDelay(attempt)
		log.Warn("Operation failed, retrying", map[string]interface{}{
			"error":        err.Error(),
			"attempt":      attempt,
			"max_attempts": re.config.MaxAttempts,
			"retry_delay":  delay.String(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &RetryableError{Err: lastErr, Retryable: true, Attempt: attempt}
		case <-timer.C:
		}
	}

	log.Error("All retry attempts failed", lastErr, map[string]interface{}{
		"max_attempts": re.config.MaxAttempts,
	})

	return &RetryableError{Err: lastErr, Retryable: true, Attempt: re.config.MaxAttempts}
}

func (re *RetryExecutor) isRetryable(err error) bool {
	if re.config.RetryCondition != nil {
		return re.config.RetryCondition(err)
	}
	return IsRetryableFault(err)
}

func (re *RetryExecutor) calculateDelay(attempt int) time.Duration {
	return ExponentialBackoff(attempt, re.config.InitialDelay, re.config.MaxDelay, re.config.BackoffMultiplier, re.config.Jitter)
}

// ExponentialBackoff calculates exponential backoff delay
func ExponentialBackoff(attempt int, initialDelay, maxDelay time.Duration, multiplier float64, jitter bool) time.Duration {
	delay := float64(initialDelay) * math.Pow(multiplier, float64(attempt-1))

	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	if jitter {
		delay += rand.Float64() * 0.1 * delay
	}

	return time.Duration(delay)
}
