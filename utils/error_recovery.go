package utils

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// RecoveryHandler turns panics inside plugin code into internal faults so a
// single bad call never takes the process down.
type RecoveryHandler struct {
	logger        *Logger
	mu            sync.Mutex
	panicCount    int
	lastPanicTime time.Time
}

// NewRecoveryHandler creates a new recovery handler
func NewRecoveryHandler(logger *Logger) *RecoveryHandler {
	if logger == nil {
		logger = GetLogger()
	}
	return &RecoveryHandler{logger: logger}
}

// Guard runs fn and converts a panic into an internal fault
func (rh *RecoveryHandler) Guard(operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			rh.handlePanic(operation, r)
			err = Internal(fmt.Sprintf("%s failed unexpectedly", operation), fmt.Errorf("panic: %v", r))
		}
	}()
	return fn()
}

func (rh *RecoveryHandler) handlePanic(operation string, panicValue interface{}) {
	rh.mu.Lock()
	rh.panicCount++
	rh.lastPanicTime = time.Now()
	count := rh.panicCount
	rh.mu.Unlock()

	stack := make([]byte, 4096)
	stack = stack[:runtime.Stack(stack, false)]

	rh.logger.WithSource("recovery_handler").Error("Panic recovered", fmt.Errorf("panic: %v", panicValue), map[string]interface{}{
		"operation":   operation,
		"stack_trace": string(stack),
		"panic_count": count,
	})
}

// GetStats returns recovery statistics
func (rh *RecoveryHandler) GetStats() map[string]interface{} {
	rh.mu.Lock()
	defer rh.mu.Unlock()

	return map[string]interface{}{
		"panic_count":     rh.panicCount,
		"last_panic_time": rh.lastPanicTime,
	}
}

// GracefulShutdown runs registered shutdown hooks in reverse order
type GracefulShutdown struct {
	shutdownFuncs []func(context.Context) error
	timeout       time.Duration
	logger        *Logger
	mu            sync.Mutex
}

// NewGracefulShutdown creates a new graceful shutdown handler
func NewGracefulShutdown(timeout time.Duration, logger *Logger) *GracefulShutdown {
	if logger == nil {
		logger = GetLogger()
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &GracefulShutdown{
		timeout: timeout,
		logger:  logger,
	}
}

// RegisterShutdown registers a shutdown function
func (gs *GracefulShutdown) RegisterShutdown(shutdownFunc func(context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.shutdownFuncs = append(gs.shutdownFuncs, shutdownFunc)
}

// Shutdown performs graceful shutdown
func (gs *GracefulShutdown) Shutdown(ctx context.Context) error {
	gs.mu.Lock()
	funcs := append([]func(context.Context) error(nil), gs.shutdownFuncs...)
	gs.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, gs.timeout)
	defer cancel()

	log := gs.logger.WithSource("graceful_shutdown")
	log.Info("Starting graceful shutdown", map[string]interface{}{
		"shutdown_funcs": len(funcs),
		"timeout":        gs.timeout.String(),
	})

	var failures int
	for i := len(funcs) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if r := recover(); r != nil {
					failures++
					log.Error("Shutdown function panicked", fmt.Errorf("panic: %v", r), map[string]interface{}{
						"function_index": i,
					})
				}
			}()

			if err := funcs[i](shutdownCtx); err != nil {
				failures++
				log.Error("Shutdown function failed", err, map[string]interface{}{
					"function_index": i,
				})
			}
		}()

		if err := shutdownCtx.Err(); err != nil {
			log.Warn("Shutdown timeout reached", map[string]interface{}{
				"remaining_functions": i,
			})
			return err
		}
	}

	if failures > 0 {
		return fmt.Errorf("shutdown completed with %d errors", failures)
	}

	log.Info("Graceful shutdown completed")
	return nil
}
