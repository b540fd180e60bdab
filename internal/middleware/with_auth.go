package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/teachmate-api/internal/utils"
)

// AuthOptions configures WithAuth. Any role other than AuthRoleAny implies RequireUser.
type AuthOptions struct {
	Role        string
	RequireUser bool
}

// WithAuth guards a single handler behind an authenticated caller and, optionally, a role.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := normalizeRole(opts.Role)
	if role == "" {
		role = AuthRoleAny
	}
	requireUser := opts.RequireUser || role != AuthRoleAny

	return func(c *fiber.Ctx) error {
		if requireUser && !authenticated(c) {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		if role != AuthRoleAny && !satisfies(roleOf(c), role) {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}
		return handler(c)
	}
}
