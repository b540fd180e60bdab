package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/service"
	"github.com/noah-isme/teachmate-api/internal/utils"
)

// AssessmentHandler serves assessments and their questions.
type AssessmentHandler struct {
	service service.AssessmentService
	logger  zerolog.Logger
}

// NewAssessmentHandler constructs the handler.
func NewAssessmentHandler(service service.AssessmentService, logger zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		service: service,
		logger:  logger.With().Str("component", "assessment_handler").Logger(),
	}
}

// Register binds /assessment.
func (h *AssessmentHandler) Register(router fiber.Router, aiLimit fiber.Handler) {
	router.Post("/generate", aiLimit, teacherOnly(h.generate))
	router.Get("/teacher/:teacherId", h.listByTeacher)
	router.Get("/:id", h.get)
	router.Get("/:id/questions", h.questions)
	router.Patch("/:id/status", teacherOnly(h.updateStatus))
}

func (h *AssessmentHandler) generate(c *fiber.Ctx) error {
	var payload dto.AssessmentGenerateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.Generate(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to generate assessment")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assessment generated", resp)
}

func (h *AssessmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	assessment, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load assessment")
	}
	return utils.SendSuccess(c, "assessment retrieved", assessment)
}

// questions hides expected answers from everyone but teachers.
func (h *AssessmentHandler) questions(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	role := userRoleFromContext(c)
	reveal := role == models.RoleTeacher || role == models.RoleAdmin

	questions, err := h.service.Questions(requestContext(c), id, reveal)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load questions")
	}
	return utils.SendSuccess(c, "questions retrieved", questions)
}

func (h *AssessmentHandler) listByTeacher(c *fiber.Ctx) error {
	teacherID, err := parseUintParam(c, "teacherId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	assessments, err := h.service.ListByTeacher(requestContext(c), teacherID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load assessments")
	}
	return utils.SendSuccess(c, "assessments retrieved", assessments)
}

func (h *AssessmentHandler) updateStatus(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.AssessmentStatusRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assessment, err := h.service.UpdateStatus(requestContext(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update assessment status")
	}
	return utils.SendSuccess(c, "assessment status updated", assessment)
}
