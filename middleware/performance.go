package middleware

import (
	"fmt"

	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds the Process admission limiter configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// OnLimitReached is called for each shed request, before the response is written
	OnLimitReached func(*fiber.Ctx)
}

// ProcessRateLimit sheds Process calls above a token-bucket rate. A shed call
// is answered with an unavailable fault so the host may retry it later. A
// non-positive rate disables the limiter.
func ProcessRateLimit(config RateLimitConfig) fiber.Handler {
	if config.RequestsPerSecond <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	burst := config.BurstSize
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)

	return func(c *fiber.Ctx) error {
		if limiter.Allow() {
			return c.Next()
		}

		utils.GetLogger().WithTraceID(utils.GetTraceID(c)).WithSource("rate_limiter").Warn(
			"Process call shed by rate limiter", map[string]interface{}{
				"path":                c.Path(),
				"requests_per_second": config.RequestsPerSecond,
				"burst_size":          burst,
			})
		if config.OnLimitReached != nil {
			config.OnLimitReached(c)
		}

		c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", retryAfterSeconds(config.RequestsPerSecond)))
		return utils.ServiceUnavailableResponse(c, "plugin is shedding load, retry later")
	}
}

func retryAfterSeconds(rps float64) int {
	if rps >= 1 {
		return 1
	}
	return int(1/rps) + 1
}
