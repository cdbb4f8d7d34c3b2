// middleware/gateway.go
package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// OracleRateLimit caps how often the paid judge can be hit across all
// clients. perMinute <= 0 disables the limit.
func OracleRateLimit(perMinute int, logger *slog.Logger) fiber.Handler {
	if perMinute <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)

	return func(c *fiber.Ctx) error {
		if !limiter.Allow() {
			logger.Warn("oracle_rate_limited", "path", c.Path(), "ip", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"ok":      false,
				"message": "Rate limit exceeded",
			})
		}
		return c.Next()
	}
}

// AccessLog writes one structured line per request.
func AccessLog(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Info("http_request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"elapsed", time.Since(start),
			"ip", c.IP(),
		)
		return err
	}
}
