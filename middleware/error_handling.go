package middleware

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandlingConfig holds configuration for the error handling middleware
type ErrorHandlingConfig struct {
	// EnableStackTrace logs the stack of recovered panics
	EnableStackTrace bool
	// MaxStackBytes bounds the logged stack
	MaxStackBytes int
	Logger        *utils.Logger
}

// DefaultErrorHandlingConfig returns default configuration
func DefaultErrorHandlingConfig() *ErrorHandlingConfig {
	return &ErrorHandlingConfig{
		EnableStackTrace: true,
		MaxStackBytes:    4096,
		Logger:           utils.GetLogger(),
	}
}

// ErrorHandling turns a panic in a handler into an internal fault response
// and any error a handler returns into the matching fault envelope.
func ErrorHandling(config ...*ErrorHandlingConfig) fiber.Handler {
	cfg := DefaultErrorHandlingConfig()
	if len(config) > 0 && config[0] != nil {
		cfg = config[0]
	}

	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = handlePanic(c, r, cfg)
			}
		}()

		if err := c.Next(); err != nil {
			return handleError(c, err, cfg)
		}
		return nil
	}
}

// ErrorHandler is used as fiber.Config.ErrorHandler so errors raised outside
// the middleware chain (routing, body limits) get the same envelope.
func ErrorHandler(logger *utils.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		return handleError(c, err, &ErrorHandlingConfig{Logger: logger})
	}
}

func handlePanic(c *fiber.Ctx, panicValue interface{}, cfg *ErrorHandlingConfig) error {
	context := map[string]interface{}{
		"method":      c.Method(),
		"path":        c.Path(),
		"panic_value": fmt.Sprint(panicValue),
	}
	if cfg.EnableStackTrace {
		stack := make([]byte, cfg.MaxStackBytes)
		context["stack_trace"] = string(stack[:runtime.Stack(stack, false)])
	}

	cfg.Logger.WithTraceID(utils.GetTraceID(c)).WithSource("error_middleware").Error(
		"Panic recovered in HTTP handler", fmt.Errorf("panic: %v", panicValue), context)

	return utils.FaultResponse(c, utils.Internal("an unexpected error occurred", nil))
}

func handleError(c *fiber.Ctx, err error, cfg *ErrorHandlingConfig) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code := utils.FaultCodeFromStatus(fiberErr.Code)
		if fiberErr.Code == fiber.StatusNotFound || fiberErr.Code == fiber.StatusMethodNotAllowed ||
			fiberErr.Code == fiber.StatusRequestEntityTooLarge {
			code = utils.FaultInvalidArgument
		}
		return utils.ErrorResponse(c, fiberErr.Code, string(code), fiberErr.Message, nil)
	}

	fault := utils.AsFault(err)
	if fault.Code == utils.FaultInternal {
		cfg.Logger.WithTraceID(utils.GetTraceID(c)).WithSource("error_middleware").Error(
			"Request processing error", err, map[string]interface{}{
				"method": c.Method(),
				"path":   c.Path(),
			})
	}
	return utils.FaultResponse(c, fault)
}
