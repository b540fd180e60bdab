package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teachmate-api/internal/utils"
)

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Meta    *utils.PageMeta        `json:"meta"`
	Details map[string]interface{} `json:"details"`
}

func respond(t *testing.T, handler fiber.Handler) (int, envelope) {
	t.Helper()
	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestSendSuccessWithStatus(t *testing.T) {
	code, body := respond(t, func(c *fiber.Ctx) error {
		return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "", fiber.Map{"job_id": "abc"})
	})

	require.Equal(t, fiber.StatusAccepted, code)
	require.True(t, body.Success)
	require.Equal(t, "success", body.Message)
	require.JSONEq(t, `{"job_id":"abc"}`, string(body.Data))
	require.Nil(t, body.Meta)
}

func TestSendPageFlagsFullPages(t *testing.T) {
	code, body := respond(t, func(c *fiber.Ctx) error {
		return utils.SendPage(c, "notifications", []int{1, 2}, 2, 2, 4)
	})
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, &utils.PageMeta{Limit: 2, Offset: 4, Count: 2, HasMore: true}, body.Meta)

	_, body = respond(t, func(c *fiber.Ctx) error {
		return utils.SendPage(c, "notifications", []int{1}, 1, 50, 0)
	})
	require.False(t, body.Meta.HasMore)
}

func TestFailCarriesDetails(t *testing.T) {
	code, body := respond(t, func(c *fiber.Ctx) error {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", map[string]string{"StudentID": "required"})
	})

	require.Equal(t, fiber.StatusBadRequest, code)
	require.False(t, body.Success)
	require.Equal(t, "validation failed", body.Message)
	require.Equal(t, "required", body.Details["StudentID"])
	require.Empty(t, body.Data)

	_, body = respond(t, func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusNotFound, "")
	})
	require.Equal(t, "error", body.Message)
	require.Nil(t, body.Details)
}
