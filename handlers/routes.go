// handlers/routes.go
package handlers

import (
	"context"
	"errors"
	"log/slog"

	"password-game/middleware"
	"password-game/oracle"
	"password-game/services"

	"github.com/gofiber/fiber/v2"
)

// Deps is everything the API routes need.
type Deps struct {
	Accounts *services.AccountService
	Tokens   *services.TokenService
	Game     *services.GameService
	Runs     *services.RunService
	History  *services.HistoryService
	Judge    oracle.Evaluator
	Pinger   Pinger
	Audit    AuditSink
	// RuleCheckRatePerMinute <= 0 disables the judge rate limit.
	RuleCheckRatePerMinute int
	Ping                   func(ctx context.Context) error
	Logger                 *slog.Logger
}

// Register mounts every API route under /api plus /healthz.
func Register(app *fiber.App, d Deps) {
	requireAuth := middleware.RequireAuth(d.Tokens, d.Accounts, d.Logger)
	api := app.Group("/api")

	SetupAuthRoutes(api, d.Accounts, d.Tokens, requireAuth, d.Logger)
	SetupGameRoutes(api, d.Game, requireAuth, d.Logger)
	SetupRuleRoutes(api, d.Judge, d.Pinger, d.Audit, middleware.OracleRateLimit(d.RuleCheckRatePerMinute, d.Logger), d.Logger)
	SetupRunRoutes(api, d.Runs, d.History, requireAuth, d.Logger)

	if d.Ping != nil {
		app.Get("/healthz", HealthCheck(d.Ping))
	}
}

// ErrorHandler renders fiber errors with the API's {"message"} body.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("unhandled_error", "path", c.Path(), "err", err)
		}
		return c.Status(code).JSON(fiber.Map{"message": err.Error()})
	}
}
