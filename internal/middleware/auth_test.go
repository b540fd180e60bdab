package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teachmate-api/internal/middleware"
)

// as fakes what JWTProtected would have stored for the caller.
func as(userID uint, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID != 0 {
			c.Locals(middleware.LocalUserID, userID)
			c.Locals(middleware.LocalUserRole, role)
		}
		return c.Next()
	}
}

func status(t *testing.T, app *fiber.App, path string) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestWithAuthRoles(t *testing.T) {
	cases := map[string]struct {
		userID uint
		role   string
		opts   middleware.AuthOptions
		want   int
	}{
		"student on student route":   {10, "Student", middleware.AuthOptions{Role: middleware.AuthRoleStudent}, fiber.StatusNoContent},
		"guest on student route":     {10, "guest", middleware.AuthOptions{Role: middleware.AuthRoleStudent}, fiber.StatusForbidden},
		"teacher on admin route":     {1, "teacher", middleware.AuthOptions{Role: middleware.AuthRoleAdmin}, fiber.StatusNoContent},
		"admin on teacher route":     {1, "admin", middleware.AuthOptions{Role: middleware.AuthRoleTeacher}, fiber.StatusNoContent},
		"student on parent route":    {3, "student", middleware.AuthOptions{Role: middleware.AuthRoleParent}, fiber.StatusForbidden},
		"parent on teacher route":    {4, "parent", middleware.AuthOptions{Role: middleware.AuthRoleTeacher}, fiber.StatusForbidden},
		"anonymous on teacher route": {0, "", middleware.AuthOptions{Role: middleware.AuthRoleTeacher}, fiber.StatusUnauthorized},
		"anonymous needing a user":   {0, "", middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}, fiber.StatusUnauthorized},
		"anonymous allowed":          {0, "", middleware.AuthOptions{}, fiber.StatusNoContent},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			app := fiber.New()
			app.Use(as(tc.userID, tc.role))
			app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusNoContent)
			}, tc.opts))

			require.Equal(t, tc.want, status(t, app, "/"))
		})
	}
}

func TestRequireRoleGuardsGroup(t *testing.T) {
	build := func(userID uint, role string) *fiber.App {
		app := fiber.New()
		app.Use(as(userID, role))
		jobs := app.Group("/jobs", middleware.RequireRole(middleware.AuthRoleTeacher))
		jobs.Get("/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
		return app
	}

	require.Equal(t, fiber.StatusOK, status(t, build(1, "teacher"), "/jobs/abc"))
	require.Equal(t, fiber.StatusOK, status(t, build(1, "ADMIN"), "/jobs/abc"))
	require.Equal(t, fiber.StatusForbidden, status(t, build(2, "student"), "/jobs/abc"))
	require.Equal(t, fiber.StatusUnauthorized, status(t, build(0, ""), "/jobs/abc"))
}

func TestRequireRoleAcceptsAnyListedRole(t *testing.T) {
	app := fiber.New()
	app.Use(as(5, "parent"))
	app.Get("/", middleware.RequireRole("student", " Parent "), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	require.Equal(t, fiber.StatusOK, status(t, app, "/"))
}
