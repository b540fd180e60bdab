package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/service"
	"github.com/noah-isme/teachmate-api/internal/utils"
)

const voiceSignatureHeader = "X-Retell-Signature"

// VoiceHandler serves voice call management and the provider callbacks.
type VoiceHandler struct {
	service service.VoiceService
	logger  zerolog.Logger
}

// NewVoiceHandler constructs the handler.
func NewVoiceHandler(service service.VoiceService, logger zerolog.Logger) *VoiceHandler {
	return &VoiceHandler{
		service: service,
		logger:  logger.With().Str("component", "voice_handler").Logger(),
	}
}

// RegisterCallbacks binds the provider-facing routes. They are authenticated by signature,
// not by user token, and answer without the API envelope.
func (h *VoiceHandler) RegisterCallbacks(voice fiber.Router, functions fiber.Router) {
	voice.Post("/webhook", h.verifySignature, h.webhook)

	functions.Use(h.verifySignature)
	functions.Post("/search_knowledge_base", h.searchKnowledgeBase)
	functions.Post("/get_student_progress", h.studentProgress)
	functions.Post("/get_upcoming_assessments", h.upcomingAssessments)
}

// Register binds the user-facing voice routes.
func (h *VoiceHandler) Register(router fiber.Router) {
	router.Post("/student/start", h.startStudent)
	router.Post("/parent/start", h.startParent)
	router.Get("/history/:student_id", h.history)
	router.Post("/end/:call_id", h.end)
}

func (h *VoiceHandler) verifySignature(c *fiber.Ctx) error {
	if err := h.service.VerifySignature(c.Body(), c.Get(voiceSignatureHeader)); err != nil {
		requestLogger(h.logger, c).Warn().Str("path", c.Path()).Msg("rejected voice callback signature")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid signature"})
	}
	return c.Next()
}

func (h *VoiceHandler) startStudent(c *fiber.Ctx) error {
	var payload dto.VoiceStartRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	resp, err := h.service.StartStudent(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to start voice call")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "voice call started successfully", resp)
}

func (h *VoiceHandler) startParent(c *fiber.Ctx) error {
	var payload dto.ParentVoiceStartRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	resp, err := h.service.StartParent(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to start voice call")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "voice call started successfully", resp)
}

func (h *VoiceHandler) history(c *fiber.Ctx) error {
	studentID, err := parseUintParam(c, "student_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	calls, err := h.service.History(requestContext(c), studentID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to get call history")
	}
	return utils.SendSuccess(c, "call history retrieved successfully", fiber.Map{"calls": calls})
}

func (h *VoiceHandler) end(c *fiber.Ctx) error {
	call, err := h.service.End(requestContext(c), c.Params("call_id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to end call")
	}
	return utils.SendSuccess(c, "call ended successfully", call)
}

func (h *VoiceHandler) webhook(c *fiber.Ctx) error {
	var payload dto.VoiceWebhookRequest
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	resp, err := h.service.HandleWebhook(requestContext(c), payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrVoiceCallNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "call not found"})
		case errors.Is(err, service.ErrStudentNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "student not found"})
		case errors.Is(err, service.ErrParentNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "parent not found"})
		}
		requestLogger(h.logger, c).Error().Err(err).Str("call_id", payload.CallID).Msg("voice webhook failed")
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}
	return c.JSON(resp)
}

func (h *VoiceHandler) parseFunction(c *fiber.Ctx) dto.VoiceFunctionRequest {
	var payload dto.VoiceFunctionRequest
	if err := c.BodyParser(&payload); err != nil {
		requestLogger(h.logger, c).Debug().Err(err).Msg("voice function body not parsed")
	}
	if payload.Args == nil {
		payload.Args = map[string]interface{}{}
	}
	// arguments may also arrive in the query string
	for _, key := range []string{"query", "subject"} {
		if _, ok := payload.Args[key]; !ok {
			if v := c.Query(key); v != "" {
				payload.Args[key] = v
			}
		}
	}
	return payload
}

func (h *VoiceHandler) searchKnowledgeBase(c *fiber.Ctx) error {
	return c.JSON(h.service.SearchKnowledgeBase(requestContext(c), h.parseFunction(c)))
}

func (h *VoiceHandler) studentProgress(c *fiber.Ctx) error {
	return c.JSON(h.service.StudentProgress(requestContext(c), h.parseFunction(c)))
}

func (h *VoiceHandler) upcomingAssessments(c *fiber.Ctx) error {
	return c.JSON(h.service.UpcomingAssessments(requestContext(c), h.parseFunction(c)))
}
