package handlers

import (
	"errors"
	"fmt"
	"log/slog"

	"password-game/services"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// writeError maps service errors onto the API's status codes.
func writeError(c *fiber.Ctx, logger *slog.Logger, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, services.ErrInvalidUsername),
		errors.Is(err, services.ErrInvalidRunPayload),
		errors.Is(err, services.ErrNoFieldsToUpdate):
		status, message = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrUnauthorized),
		errors.Is(err, services.ErrAccountNotFound):
		status, message = fiber.StatusUnauthorized, "Invalid token"
	case errors.Is(err, services.ErrForbidden):
		status, message = fiber.StatusForbidden, "Forbidden"
	case errors.Is(err, services.ErrRunNotFound):
		status, message = fiber.StatusNotFound, "Run not found"
	default:
		logger.Error("request_failed", "method", c.Method(), "path", c.Path(), "err", err)
	}
	return c.Status(status).JSON(fiber.Map{"message": message})
}

// decodeBody unmarshals a JSON body into dst. An empty body leaves dst zeroed.
func decodeBody(c *fiber.Ctx, dst any) error {
	body := c.Body()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return nil
}

var errBadJSON = errors.New("invalid JSON body")

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": message})
}

// ruleList reads a JSON value as a rule list; anything but an array is empty.
func ruleList(raw json.RawMessage) []json.RawMessage {
	var rules []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &rules) != nil || rules == nil {
		return []json.RawMessage{}
	}
	return rules
}
