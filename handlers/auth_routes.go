// handlers/auth_routes.go
package handlers

import (
	"log/slog"

	"password-game/middleware"
	"password-game/services"

	"github.com/gofiber/fiber/v2"
)

type loginRequest struct {
	Username string `json:"username"`
}

type loginResponse struct {
	Token        string  `json:"token"`
	Username     string  `json:"username"`
	HighestLevel int     `json:"highestLevel"`
	LongestTime  float64 `json:"longestTime"`
	TimesPlayed  int64   `json:"timesPlayed"`
}

func SetupAuthRoutes(router fiber.Router, accounts *services.AccountService, tokens *services.TokenService, requireAuth fiber.Handler, logger *slog.Logger) {
	auth := router.Group("/auth")

	auth.Post("/login", func(c *fiber.Ctx) error {
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "Username is required")
		}

		acc, err := accounts.FindOrCreate(c.UserContext(), req.Username)
		if err != nil {
			return writeError(c, logger, err)
		}

		token, err := tokens.Issue(acc)
		if err != nil {
			return writeError(c, logger, err)
		}

		return c.JSON(loginResponse{
			Token:        token,
			Username:     acc.Username,
			HighestLevel: acc.HighestLevel,
			LongestTime:  acc.LongestTime,
			TimesPlayed:  acc.TimesPlayed,
		})
	})

	auth.Get("/verify", requireAuth, func(c *fiber.Ctx) error {
		acc, _ := middleware.CurrentAccount(c)
		return c.JSON(acc.Summary())
	})
}
