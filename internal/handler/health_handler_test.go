package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teachmate-api/internal/config"
	"github.com/noah-isme/teachmate-api/internal/handler"
)

func TestHealthCheckReportsDependencies(t *testing.T) {
	cfg := config.Config{AppName: "TeachMate API", AppEnv: "test"}

	t.Run("healthy", func(t *testing.T) {
		app := fiber.New()
		app.Get("/health", handler.HealthCheck(cfg, map[string]handler.HealthProbe{
			"database": func(context.Context) error { return nil },
		}))

		resp := doRequest(t, app, http.MethodGet, "/health", "", nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var payload handler.HealthResponse
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &payload))
		require.Equal(t, "ok", payload.Status)
		require.Equal(t, "TeachMate API", payload.Service)
		require.Equal(t, map[string]string{"database": "ok"}, payload.Dependencies)
	})

	t.Run("degraded", func(t *testing.T) {
		app := fiber.New()
		app.Get("/health", handler.HealthCheck(cfg, map[string]handler.HealthProbe{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		}))

		resp := doRequest(t, app, http.MethodGet, "/health", "", nil)
		require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

		body := decodeEnvelope(t, resp)
		require.False(t, body.Success)
		var payload handler.HealthResponse
		require.NoError(t, json.Unmarshal(body.Details, &payload))
		require.Equal(t, "degraded", payload.Status)
		require.Equal(t, "connection refused", payload.Dependencies["redis"])
	})
}

func TestHealthIsPublic(t *testing.T) {
	env := setupApp(t)

	resp := doRequest(t, env.app, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "Test", resp.Header.Get("X-Application"))
}
