// handlers/run_routes.go
package handlers

import (
	"bytes"
	"log/slog"

	"password-game/middleware"
	"password-game/models"
	"password-game/services"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

type runPatchRequest struct {
	TotalTime    *models.Number `json:"totalTime"`
	AvgTime      *models.Number `json:"avgTime"`
	Level        *models.Number `json:"level"`
	LastPassword *string        `json:"lastPassword"`

	// nullPassword is set when lastPassword is present but null.
	nullPassword bool
}

func (r *runPatchRequest) UnmarshalJSON(b []byte) error {
	type plain runPatchRequest
	var body plain
	if err := json.Unmarshal(b, &body); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*r = runPatchRequest(body)
	if raw, ok := fields["lastPassword"]; ok && string(bytes.TrimSpace(raw)) == "null" {
		r.nullPassword = true
	}
	return nil
}

func (r runPatchRequest) patch() services.RunPatch {
	pwd := r.LastPassword
	if r.nullPassword {
		empty := ""
		pwd = &empty
	}
	return services.RunPatch{
		TotalTime:    r.TotalTime.Float(),
		AvgTime:      r.AvgTime.Float(),
		Level:        r.Level.Float(),
		LastPassword: pwd,
	}
}

func SetupRunRoutes(router fiber.Router, runs *services.RunService, history *services.HistoryService, requireAuth fiber.Handler, logger *slog.Logger) {
	group := router.Group("/runs")

	// Username selects the user's history; without it the leaderboard is returned.
	group.Get("/", func(c *fiber.Ctx) error {
		view, err := history.Query(c.UserContext(), services.RunQuery{
			Username: c.Query("username"),
			Limit:    services.ParseLimit(c.Query("limit")),
		})
		if err != nil {
			return writeError(c, logger, err)
		}
		if view.IsHistory() {
			return c.JSON(view.History)
		}
		return c.JSON(view.Leaderboard)
	})

	group.Get("/:id", func(c *fiber.Ctx) error {
		run, err := runs.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(run)
	})

	group.Post("/", requireAuth, func(c *fiber.Ctx) error {
		var req saveRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "Invalid run payload")
		}
		if req.TotalTime == nil || req.AvgTime == nil || req.Level == nil {
			return badRequest(c, "totalTime, avgTime and level are required")
		}

		acc, _ := middleware.CurrentAccount(c)
		run, err := runs.Create(c.UserContext(), acc.Username, services.RunInput{
			TotalTime:    float64(*req.TotalTime),
			AvgTime:      float64(*req.AvgTime),
			Level:        float64(*req.Level),
			LastPassword: req.LastPassword,
			RulesUsed:    ruleList(req.Rules),
		})
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(run)
	})

	group.Put("/:id", requireAuth, func(c *fiber.Ctx) error {
		var req runPatchRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "Invalid run payload")
		}

		acc, _ := middleware.CurrentAccount(c)
		run, err := runs.Update(c.UserContext(), c.Params("id"), acc.Username, req.patch())
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(run)
	})

	group.Delete("/:id", requireAuth, func(c *fiber.Ctx) error {
		acc, _ := middleware.CurrentAccount(c)
		if err := runs.Delete(c.UserContext(), c.Params("id"), acc.Username); err != nil {
			return writeError(c, logger, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
