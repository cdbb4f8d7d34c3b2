// middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"password-game/models"
	"password-game/services"

	"github.com/gofiber/fiber/v2"
)

const accountLocalsKey = "account"

// TokenParser verifies a bearer token.
type TokenParser interface {
	Parse(token string) (*services.Claims, error)
}

// AccountLookup re-fetches the account a token points at.
type AccountLookup interface {
	Get(ctx context.Context, id string) (*models.Account, error)
}

// RequireAuth rejects requests without a valid bearer token whose account
// still exists, and attaches the account for handlers.
func RequireAuth(tokens TokenParser, accounts AccountLookup, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Authorization required"})
		}

		claims, err := tokens.Parse(token)
		if err != nil {
			logger.Debug("auth_token_rejected", "path", c.Path(), "err", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid token"})
		}

		acc, err := accounts.Get(c.UserContext(), claims.AccountID)
		if err != nil {
			if errors.Is(err, services.ErrAccountNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "User not found"})
			}
			logger.Error("auth_account_lookup_failed", "account_id", claims.AccountID, "err", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to load account"})
		}

		c.Locals(accountLocalsKey, acc)
		return c.Next()
	}
}

// CurrentAccount returns the account attached by RequireAuth.
func CurrentAccount(c *fiber.Ctx) (*models.Account, bool) {
	acc, ok := c.Locals(accountLocalsKey).(*models.Account)
	return acc, ok && acc != nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
