package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/middleware"
	"github.com/noah-isme/teachmate-api/internal/service"
	"github.com/noah-isme/teachmate-api/internal/utils"
)

// ChatHandler wires chat endpoints including the websocket upgrade.
type ChatHandler struct {
	service service.ChatService
	logger  zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(service service.ChatService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group. aiLimit guards turns that call
// the assistant model.
func (h *ChatHandler) Register(router fiber.Router, aiLimit fiber.Handler) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			c.Locals("correlation_id", middleware.GetCorrelationID(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws/:session_id", websocket.New(h.handleConnection))

	router.Post("/student/start", h.startStudent)
	router.Post("/parent/start", h.startParent)
	router.Post("/message", aiLimit, h.sendMessage)
	router.Get("/history/:session_id", h.history)
	router.Get("/student/:student_id/sessions", h.studentSessions)
	router.Get("/attention", teacherOnly(h.attention))
	router.Patch("/close/:session_id", h.close)
}

func (h *ChatHandler) handleError(c *fiber.Ctx, err error, fallback string) error {
	return respondError(c, h.logger, err, fallback)
}

func (h *ChatHandler) startStudent(c *fiber.Ctx) error {
	var payload dto.StudentChatStartRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	resp, err := h.service.StartStudent(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err, "failed to start chat session")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, resp.Message, resp)
}

func (h *ChatHandler) startParent(c *fiber.Ctx) error {
	var payload dto.ParentChatStartRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	resp, err := h.service.StartParent(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err, "failed to start chat session")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, resp.Message, resp)
}

func (h *ChatHandler) sendMessage(c *fiber.Ctx) error {
	var payload dto.ChatMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	resp, err := h.service.SendMessage(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err, "failed to process message")
	}
	return utils.SendSuccess(c, "message processed", resp)
}

func (h *ChatHandler) history(c *fiber.Ctx) error {
	conversation, err := h.service.History(requestContext(c), c.Params("session_id"))
	if err != nil {
		return h.handleError(c, err, "failed to load chat history")
	}
	return utils.SendSuccess(c, "chat history", conversation)
}

func (h *ChatHandler) studentSessions(c *fiber.Ctx) error {
	studentID, err := parseUintParam(c, "student_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	sessions, err := h.service.StudentSessions(requestContext(c), studentID)
	if err != nil {
		return h.handleError(c, err, "failed to load chat sessions")
	}
	return utils.SendSuccess(c, "chat sessions", sessions)
}

func (h *ChatHandler) attention(c *fiber.Ctx) error {
	conversations, err := h.service.NeedsAttention(requestContext(c))
	if err != nil {
		return h.handleError(c, err, "failed to load chat sessions")
	}
	return utils.SendSuccess(c, "sessions needing attention", conversations)
}

func (h *ChatHandler) close(c *fiber.Ctx) error {
	if err := h.service.Close(requestContext(c), c.Params("session_id")); err != nil {
		return h.handleError(c, err, "failed to close chat session")
	}
	return utils.SendSuccess(c, "chat session closed", nil)
}

func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	userID := websocketUserID(conn)
	if userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	sessionID := strings.TrimSpace(conn.Params("session_id"))
	if sessionID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "session_id required"))
		_ = conn.Close()
		return
	}

	role, _ := conn.Locals("user_role").(string)
	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.ChatConnectionOptions{
		SessionID:     sessionID,
		UserID:        userID,
		Role:          role,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Uint("user_id", userID).Str("session_id", sessionID).Msg("chat websocket connected")
	h.service.ServeConnection(conn, opts)
	h.logger.Info().Uint("user_id", userID).Str("session_id", sessionID).Msg("chat websocket disconnected")
}

func websocketUserID(conn *websocket.Conn) uint {
	switch v := conn.Locals("user_id").(type) {
	case uint:
		return v
	case int:
		if v > 0 {
			return uint(v)
		}
	case float64:
		if v > 0 {
			return uint(v)
		}
	case string:
		var id uint
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &id); err == nil {
			return id
		}
	}
	return 0
}
