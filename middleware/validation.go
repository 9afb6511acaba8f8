package middleware

import (
	"fmt"
	"strings"

	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/gofiber/fiber/v2"
)

// ValidationConfig holds request validation configuration
type ValidationConfig struct {
	MaxBodySize int64
}

// DefaultValidationConfig returns default validation configuration
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxBodySize: 10 * 1024 * 1024, // 10MB
	}
}

// RequestValidation rejects POST bodies that are too large or declared as
// something other than JSON. Both are invalid_argument faults.
func RequestValidation(config ...ValidationConfig) fiber.Handler {
	cfg := DefaultValidationConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		if contentType := c.Get(fiber.HeaderContentType); contentType != "" && !isJSONContentType(contentType) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, string(utils.FaultInvalidArgument),
				"Content-Type must be application/json", nil)
		}

		if cfg.MaxBodySize > 0 && int64(len(c.Body())) > cfg.MaxBodySize {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, string(utils.FaultInvalidArgument),
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", cfg.MaxBodySize), nil)
		}

		return c.Next()
	}
}

func isJSONContentType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	return mediaType == fiber.MIMEApplicationJSON || strings.HasSuffix(mediaType, "+json")
}
