package utils

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// TraceHeader carries the correlation id between host and plugin
const TraceHeader = "X-Trace-ID"

// StandardResponse is the envelope every HTTP plugin endpoint answers with
type StandardResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id"`
}

// ErrorInfo describes a fault in the envelope. Code is one of the fault codes.
type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// SuccessResponse creates a successful response
func SuccessResponse(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(StandardResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		TraceID:   getTraceID(c),
	})
}

// ErrorResponse creates an error response
func ErrorResponse(c *fiber.Ctx, statusCode int, code, message string, details map[string]string) error {
	return c.Status(statusCode).JSON(StandardResponse{
		Success: false,
		Message: "Request failed",
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now(),
		TraceID:   getTraceID(c),
	})
}

// FaultResponse writes err as a fault envelope with the matching status.
// Untyped errors are reported as internal and their text is not exposed.
func FaultResponse(c *fiber.Ctx, err error) error {
	f := AsFault(err)
	message := f.Message
	if f.Code == FaultInternal && message == "" {
		message = "internal error"
	}
	return ErrorResponse(c, f.Code.HTTPStatus(), string(f.Code), message, nil)
}

// ServiceUnavailableResponse creates an unavailable response
func ServiceUnavailableResponse(c *fiber.Ctx, reason string) error {
	message := "Plugin temporarily unavailable"
	if reason != "" {
		message = reason
	}
	return ErrorResponse(c, fiber.StatusServiceUnavailable, string(FaultUnavailable), message, nil)
}

// getTraceID gets or generates a trace ID for request tracking
func getTraceID(c *fiber.Ctx) string {
	if traceID := c.Locals("trace_id"); traceID != nil {
		if id, ok := traceID.(string); ok && id != "" {
			return id
		}
	}
	if traceID := c.Get(TraceHeader); traceID != "" {
		return traceID
	}
	traceID := uuid.New().String()
	c.Locals("trace_id", traceID)
	return traceID
}

// SetTraceID sets a trace ID in the context
func SetTraceID(c *fiber.Ctx, traceID string) {
	c.Locals("trace_id", traceID)
}

// GetTraceID gets the trace ID from context
func GetTraceID(c *fiber.Ctx) string {
	return getTraceID(c)
}
