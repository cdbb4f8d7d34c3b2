// handlers/game.go
package handlers

import (
	"log/slog"

	"password-game/middleware"
	"password-game/models"
	"password-game/services"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

type saveRequest struct {
	TotalTime    *models.Number  `json:"totalTime"`
	AvgTime      *models.Number  `json:"avgTime"`
	Level        *models.Number  `json:"level"`
	LastPassword string          `json:"lastPassword"`
	Rules        json.RawMessage `json:"rules"`
}

func SetupGameRoutes(router fiber.Router, game *services.GameService, requireAuth fiber.Handler, logger *slog.Logger) {
	router.Post("/game/save", requireAuth, func(c *fiber.Ctx) error {
		var req saveRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "Missing result fields")
		}
		if req.TotalTime == nil || req.AvgTime == nil || req.Level == nil || req.LastPassword == "" {
			return badRequest(c, "Missing result fields")
		}

		acc, _ := middleware.CurrentAccount(c)
		_, updated, err := game.SaveResult(c.UserContext(), acc, services.RunInput{
			TotalTime:    float64(*req.TotalTime),
			AvgTime:      float64(*req.AvgTime),
			Level:        float64(*req.Level),
			LastPassword: req.LastPassword,
			RulesUsed:    ruleList(req.Rules),
		})
		if err != nil {
			return writeError(c, logger, err)
		}

		return c.JSON(fiber.Map{
			"ok":           true,
			"highestLevel": updated.HighestLevel,
		})
	})
}
