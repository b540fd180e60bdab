package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/service"
	"github.com/noah-isme/teachmate-api/internal/utils"
)

// AuthHandler exposes login and the current user profile.
type AuthHandler struct {
	service service.AuthService
	logger  zerolog.Logger
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(service service.AuthService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger.With().Str("component", "auth_handler").Logger(),
	}
}

// RegisterPublic binds the unauthenticated routes.
func (h *AuthHandler) RegisterPublic(router fiber.Router) {
	router.Post("/login", h.login)
}

// Register binds the routes that require a token.
func (h *AuthHandler) Register(router fiber.Router) {
	router.Get("/current-user", h.currentUser)
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.Login(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "login failed")
	}
	return utils.SendSuccess(c, "login successful", resp)
}

func (h *AuthHandler) currentUser(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	user, err := h.service.CurrentUser(requestContext(c), userID, userRoleFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load current user")
	}
	return utils.SendSuccess(c, "current user", fiber.Map{
		"role": userRoleFromContext(c),
		"user": user,
	})
}
