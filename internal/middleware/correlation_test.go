package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teachmate-api/internal/middleware"
)

func TestCorrelationIDPropagates(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		c.Set("X-From-Context", middleware.CorrelationIDFromContext(c.UserContext()))
		return c.SendString(middleware.GetCorrelationID(c))
	})

	cases := map[string]struct {
		headers map[string]string
		want    string
	}{
		"correlation header": {map[string]string{"X-Correlation-ID": "corr-1"}, "corr-1"},
		"request id":         {map[string]string{"X-Request-ID": "req-9"}, "req-9"},
		"both prefer corr":   {map[string]string{"X-Correlation-ID": "a", "X-Request-ID": "b"}, "a"},
		"unsafe characters":  {map[string]string{"X-Correlation-ID": "abc <script>\"1"}, "abcscript1"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equal(t, tc.want, string(body))
			require.Equal(t, tc.want, resp.Header.Get(middleware.HeaderCorrelationID))
			require.Equal(t, tc.want, resp.Header.Get("X-From-Context"))
		})
	}
}

func TestCorrelationIDGeneratedWhenMissing(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	require.Len(t, resp.Header.Get(middleware.HeaderCorrelationID), 36)
}

func TestContextWithCorrelationIgnoresBlank(t *testing.T) {
	ctx := middleware.ContextWithCorrelation(nil, "  ")
	require.NotNil(t, ctx)
	require.Empty(t, middleware.CorrelationIDFromContext(ctx))
	require.Equal(t, "x", middleware.CorrelationIDFromContext(middleware.ContextWithCorrelation(ctx, " x ")))
}
