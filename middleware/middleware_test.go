package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"password-game/logging"
	"password-game/models"
	"password-game/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAccounts map[string]*models.Account

func (s stubAccounts) Get(_ context.Context, id string) (*models.Account, error) {
	if id == "boom" {
		return nil, errors.New("db down")
	}
	acc, ok := s[id]
	if !ok {
		return nil, services.ErrAccountNotFound
	}
	return acc, nil
}

func authApp(tokens *services.TokenService, accounts stubAccounts) *fiber.App {
	app := fiber.New()
	app.Get("/me", RequireAuth(tokens, accounts, logging.Discard()), func(c *fiber.Ctx) error {
		acc, ok := CurrentAccount(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.SendString(acc.Username)
	})
	return app
}

func get(t *testing.T, app *fiber.App, auth string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRequireAuth(t *testing.T) {
	tokens := services.NewTokenService("secret", 0)
	alice := &models.Account{ID: "a1", Username: "alice"}
	app := authApp(tokens, stubAccounts{"a1": alice})

	good, err := tokens.Issue(alice)
	require.NoError(t, err)
	gone, err := tokens.Issue(&models.Account{ID: "deleted", Username: "ghost"})
	require.NoError(t, err)
	broken, err := tokens.Issue(&models.Account{ID: "boom", Username: "x"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(t, app, "Bearer "+good))
	assert.Equal(t, http.StatusOK, get(t, app, "bearer "+good))
	assert.Equal(t, http.StatusUnauthorized, get(t, app, ""))
	assert.Equal(t, http.StatusUnauthorized, get(t, app, good))
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "Bearer nope"))
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "Bearer "+gone))
	assert.Equal(t, http.StatusInternalServerError, get(t, app, "Bearer "+broken))
}

func TestOracleRateLimit(t *testing.T) {
	app := fiber.New()
	app.Post("/check", OracleRateLimit(2, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/check", nil), -1)
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestOracleRateLimitDisabled(t *testing.T) {
	app := fiber.New()
	app.Post("/check", OracleRateLimit(0, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/check", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}
