// handlers/rule_routes.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"password-game/models"
	"password-game/oracle"
	"password-game/services"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// Pinger probes judge connectivity.
type Pinger interface {
	Ping(ctx context.Context) (*oracle.PingResult, error)
}

// AuditSink accepts rule check records for best-effort persistence.
type AuditSink interface {
	Enqueue(rec *models.RuleCheck) bool
}

type checkRequest struct {
	Password json.RawMessage `json:"password"`
	Rules    json.RawMessage `json:"rules"`
}

// passwordText coerces whatever the client sent into the password string.
func passwordText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return strconv.FormatBool(b)
	}
	return string(raw)
}

func oracleError(c *fiber.Ctx, logger *slog.Logger, err error) error {
	status := oracle.StatusOf(err)
	message := "Rule check failed"
	var oe *oracle.Error
	if errors.As(err, &oe) && oe.Message != "" {
		message = oe.Message
	}
	logger.Warn("oracle_failed", "path", c.Path(), "status", status, "err", err)
	return c.Status(status).JSON(fiber.Map{"ok": false, "message": message})
}

func SetupRuleRoutes(router fiber.Router, judge oracle.Evaluator, pinger Pinger, audit AuditSink, limiter fiber.Handler, logger *slog.Logger) {
	rules := router.Group("/rules")

	rules.Post("/check", limiter, func(c *fiber.Ctx) error {
		var req checkRequest
		if err := decodeBody(c, &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "message": "Invalid JSON body"})
		}
		password := passwordText(req.Password)
		sent := ruleList(req.Rules)

		verdict, err := judge.Evaluate(c.UserContext(), password, sent)
		if err != nil {
			return oracleError(c, logger, err)
		}

		if rec, err := services.BuildRecord(password, sent, verdict); err != nil {
			logger.Warn("rule_check_record_failed", "err", err)
		} else {
			audit.Enqueue(rec)
		}

		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(fiber.StatusOK).Send(verdict.Raw)
	})

	rules.Get("/test", func(c *fiber.Ctx) error {
		res, err := pinger.Ping(c.UserContext())
		if err != nil {
			return oracleError(c, logger, err)
		}
		return c.JSON(fiber.Map{
			"ok":    true,
			"reply": res.Reply,
			"model": res.Model,
		})
	})
}

// HealthCheck reports whether the database answers.
func HealthCheck(ping func(ctx context.Context) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"ok":      false,
				"message": fmt.Sprintf("database unavailable: %v", err),
			})
		}
		return c.JSON(fiber.Map{"ok": true})
	}
}
