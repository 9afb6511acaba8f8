package middleware

import (
	"time"

	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDHeader identifies a single HTTP exchange
const RequestIDHeader = "X-Request-ID"

// CorrelationID makes sure every request carries a trace id and a request id.
// A trace id sent by the host is kept so plugin logs line up with host logs.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get(utils.TraceHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}
		c.Set(utils.TraceHeader, traceID)

		requestID := c.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDHeader, requestID)

		utils.SetTraceID(c, traceID)
		c.Locals("request_id", requestID)

		return c.Next()
	}
}

// AccessLog logs one line per request, at a level chosen by status code.
// Requests to skipPaths are not logged.
func AccessLog(logger *utils.Logger, skipPaths ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if shouldSkipPath(c.Path(), skipPaths) {
			return c.Next()
		}

		startTime := time.Now()
		err := c.Next()
		duration := time.Since(startTime)

		statusCode := c.Response().StatusCode()
		context := map[string]interface{}{
			"method":      c.Method(),
			"path":        c.Path(),
			"status_code": statusCode,
			"duration_ms": duration.Milliseconds(),
			"ip":          c.IP(),
			"request_id":  getRequestID(c),
			"body_bytes":  len(c.Body()),
		}

		log := logger.WithTraceID(utils.GetTraceID(c)).WithSource("access")
		switch {
		case err != nil || statusCode >= 500:
			log.Error("Request completed with server error", err, context)
		case statusCode >= 400:
			log.Warn("Request completed with client error", context)
		default:
			log.Info("Request completed successfully", context)
		}

		return err
	}
}

func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if path == skipPath {
			return true
		}
	}
	return false
}

func getRequestID(c *fiber.Ctx) string {
	if requestID := c.Locals("request_id"); requestID != nil {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
