package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/teachmate-api/internal/utils"
)

// Locals written by JWTProtected.
const (
	LocalUserID   = "user_id"
	LocalUserRole = "user_role"
)

// accessClaims mirrors the tokens issued by the auth service: the subject is the numeric
// account id and role is one of teacher, student, parent or admin.
type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTProtected validates HS256 bearer tokens and stores the account id and role in locals.
// Websocket upgrades may pass the token as ?token= since browsers cannot set headers there.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(c *fiber.Ctx) error {
		raw, message := bearerToken(c)
		if raw == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, message)
		}

		claims := &accessClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		userID, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil || userID == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}
		role := normalizeRole(claims.Role)
		if role == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		c.Locals(LocalUserID, uint(userID))
		c.Locals(LocalUserRole, role)
		return c.Next()
	}
}

// bearerToken extracts the raw token, or an error message when none is usable.
func bearerToken(c *fiber.Ctx) (string, string) {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if header == "" {
		if strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket") {
			if token := strings.TrimSpace(c.Query("token")); token != "" {
				return token, ""
			}
		}
		return "", "authorization header missing"
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", "invalid authorization header"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "invalid token"
	}
	return token, ""
}
