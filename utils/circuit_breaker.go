package utils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	// StateClosed - calls reach the plugin
	StateClosed CircuitBreakerState = iota
	// StateOpen - calls are rejected without contacting the plugin
	StateOpen
	// StateHalfOpen - a limited number of trial calls are let through
	StateHalfOpen
)

// String returns the string representation of the circuit breaker state
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the guarded plugin in logs and metrics
	Name string
	// MaxFailures is the number of consecutive counted failures that opens the circuit
	MaxFailures int
	// Timeout is how long the circuit stays open before a trial call
	Timeout time.Duration
	// MaxRequests caps trial calls in the half-open state
	MaxRequests int
	// SuccessThreshold is the number of trial successes needed to close again
	SuccessThreshold int
	// IsFailure decides whether an error counts against the plugin. Nil counts every error.
	IsFailure func(error) bool
	// OnStateChange is called after each transition, outside the lock
	OnStateChange func(name string, from, to CircuitBreakerState)
}

// DefaultCircuitBreakerConfig returns a configuration that ignores
// invalid_argument faults, since those are the caller's mistake.
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		MaxRequests:      3,
		SuccessThreshold: 2,
		IsFailure: func(err error) bool {
			return FaultCodeOf(err) != FaultInvalidArgument
		},
	}
}

// CircuitBreaker stops a host from hammering a plugin that keeps failing
type CircuitBreaker struct {
	config           *CircuitBreakerConfig
	state            CircuitBreakerState
	failures         int
	successes        int
	requests         int
	stateChangedTime time.Time
	mu               sync.Mutex
	logger           *Logger
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig("plugin")
	}
	if logger == nil {
		logger = GetLogger()
	}

	return &CircuitBreaker{
		config:           config,
		state:            StateClosed,
		stateChangedTime: time.Now(),
		logger:           logger,
	}
}

// Execute runs fn unless the circuit is open
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	transition, ok := cb.allowRequest()
	if !ok {
		return &CircuitBreakerError{
			State:   cb.GetState(),
			Message: fmt.Sprintf("circuit breaker %s is open", cb.config.Name),
		}
	}
	cb.notify(transition)

	err := fn(ctx)
	if err != nil && (cb.config.IsFailure == nil || cb.config.IsFailure(err)) {
		cb.notify(cb.recordFailure())
		return err
	}

	cb.notify(cb.recordSuccess())
	return err
}

type stateTransition struct {
	from, to CircuitBreakerState
	changed  bool
}

func (cb *CircuitBreaker) allowRequest() (stateTransition, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return stateTransition{}, true
	case StateOpen:
		if time.Since(cb.stateChangedTime) >= cb.config.Timeout {
			t := cb.setState(StateHalfOpen)
			cb.requests = 1
			return t, true
		}
		return stateTransition{}, false
	case StateHalfOpen:
		if cb.requests < cb.config.MaxRequests {
			cb.requests++
			return stateTransition{}, true
		}
		return stateTransition{}, false
	default:
		return stateTransition{}, false
	}
}

func (cb *CircuitBreaker) recordSuccess() stateTransition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			t := cb.setState(StateClosed)
			cb.failures = 0
			cb.successes = 0
			cb.requests = 0
			return t
		}
	}
	return stateTransition{}
}

func (cb *CircuitBreaker) recordFailure() stateTransition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++

	cb.logger.WithSource("circuit_breaker").Warn("Plugin call failed", map[string]interface{}{
		"circuit_breaker": cb.config.Name,
		"state":           cb.state.String(),
		"failures":        cb.failures,
	})

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			return cb.setState(StateOpen)
		}
	case StateHalfOpen:
		t := cb.setState(StateOpen)
		cb.successes = 0
		cb.requests = 0
		return t
	}
	return stateTransition{}
}

// setState must be called with mu held
func (cb *CircuitBreaker) setState(newState CircuitBreakerState) stateTransition {
	if cb.state == newState {
		return stateTransition{}
	}
	t := stateTransition{from: cb.state, to: newState, changed: true}
	cb.state = newState
	cb.stateChangedTime = time.Now()

	cb.logger.WithSource("circuit_breaker").Info("Circuit breaker state changed", map[string]interface{}{
		"circuit_breaker": cb.config.Name,
		"old_state":       t.from.String(),
		"new_state":       t.to.String(),
		"failures":        cb.failures,
	})
	return t
}

func (cb *CircuitBreaker) notify(t stateTransition) {
	if t.changed && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, t.from, t.to)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns a snapshot for diagnostics
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"name":               cb.config.Name,
		"state":              cb.state.String(),
		"failures":           cb.failures,
		"successes":          cb.successes,
		"state_changed_time": cb.stateChangedTime,
	}
}

// CircuitBreakerError is returned when the circuit rejects a call
type CircuitBreakerError struct {
	State   CircuitBreakerState
	Message string
}

// Error implements the error interface
func (e *CircuitBreakerError) Error() string {
	return e.Message
}

// IsCircuitBreakerError checks if an error is a circuit breaker error
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
