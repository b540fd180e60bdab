package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/teachmate-api/internal/utils"
)

// Roles carried in access tokens. AuthRoleAny only asks for an authenticated caller.
const (
	AuthRoleAny     = "any"
	AuthRoleAdmin   = "admin"
	AuthRoleTeacher = "teacher"
	AuthRoleStudent = "student"
	AuthRoleParent  = "parent"
)

// RequireRole rejects callers whose role satisfies none of roles. It is meant for whole route
// groups; WithAuth guards single handlers.
func RequireRole(roles ...string) fiber.Handler {
	required := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = normalizeRole(role); role != "" {
			required = append(required, role)
		}
	}

	return func(c *fiber.Ctx) error {
		if !authenticated(c) {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		current := roleOf(c)
		for _, role := range required {
			if satisfies(current, role) {
				return c.Next()
			}
		}
		return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
	}
}

// satisfies reports whether current may act as required. Teachers and admins share staff rights.
func satisfies(current, required string) bool {
	switch {
	case current == "":
		return false
	case required == AuthRoleAny || current == required:
		return true
	case isStaff(required):
		return isStaff(current)
	default:
		return false
	}
}

func isStaff(role string) bool {
	return role == AuthRoleTeacher || role == AuthRoleAdmin
}

func authenticated(c *fiber.Ctx) bool {
	id, ok := c.Locals(LocalUserID).(uint)
	return ok && id != 0
}

func roleOf(c *fiber.Ctx) string {
	role, _ := c.Locals(LocalUserRole).(string)
	return normalizeRole(role)
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
