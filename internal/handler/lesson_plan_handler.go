package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/service"
	"github.com/noah-isme/teachmate-api/internal/utils"
)

// LessonPlanHandler serves lesson plans, their sessions and the workflow triggers.
type LessonPlanHandler struct {
	service service.LessonPlanService
	logger  zerolog.Logger
}

// NewLessonPlanHandler constructs the handler.
func NewLessonPlanHandler(service service.LessonPlanService, logger zerolog.Logger) *LessonPlanHandler {
	return &LessonPlanHandler{
		service: service,
		logger:  logger.With().Str("component", "lesson_plan_handler").Logger(),
	}
}

// Register binds /lesson-plan. aiLimit guards the routes that call the planning model.
func (h *LessonPlanHandler) Register(router fiber.Router, aiLimit fiber.Handler) {
	router.Post("/generate", aiLimit, teacherOnly(h.generate))
	router.Get("/teacher/:teacherId", h.listByTeacher)
	router.Get("/:id", h.get)
	router.Delete("/:id", teacherOnly(h.delete))
	router.Patch("/:id/status", teacherOnly(h.updateStatus))
	router.Patch("/:id/session/:n/complete", teacherOnly(h.completeSession))
	router.Post("/:id/session/:n/create-assessment", aiLimit, teacherOnly(h.createSessionAssessment))
	router.Post("/:id/workflow", aiLimit, teacherOnly(h.workflow))
	router.Post("/:id/index", teacherOnly(h.index))
}

func (h *LessonPlanHandler) handleError(c *fiber.Ctx, err error, fallback string) error {
	return respondError(c, h.logger, err, fallback)
}

func (h *LessonPlanHandler) generate(c *fiber.Ctx) error {
	var payload dto.LessonPlanGenerateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.Generate(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err, "failed to generate lesson plan")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "lesson plan generated", resp)
}

func (h *LessonPlanHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	plan, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err, "failed to load lesson plan")
	}
	return utils.SendSuccess(c, "lesson plan retrieved", plan)
}

func (h *LessonPlanHandler) listByTeacher(c *fiber.Ctx) error {
	teacherID, err := parseUintParam(c, "teacherId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	plans, err := h.service.ListByTeacher(requestContext(c), teacherID)
	if err != nil {
		return h.handleError(c, err, "failed to load lesson plans")
	}
	return utils.SendSuccess(c, "lesson plans retrieved", plans)
}

func (h *LessonPlanHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.service.Delete(requestContext(c), id); err != nil {
		return h.handleError(c, err, "failed to delete lesson plan")
	}
	return utils.SendSuccess(c, "lesson plan deleted", nil)
}

func (h *LessonPlanHandler) updateStatus(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.LessonPlanStatusRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.UpdateStatus(requestContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err, "failed to update lesson plan status")
	}
	return utils.SendSuccess(c, "lesson plan status updated", resp)
}

func (h *LessonPlanHandler) completeSession(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	number, err := parseIntParam(c, "n")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid session number")
	}

	resp, err := h.service.CompleteSession(requestContext(c), id, number)
	if err != nil {
		return h.handleError(c, err, "failed to complete session")
	}
	return utils.SendSuccess(c, "session completed", resp)
}

func (h *LessonPlanHandler) createSessionAssessment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	number, err := parseIntParam(c, "n")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid session number")
	}
	var payload dto.SessionAssessmentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.CreateSessionAssessment(requestContext(c), id, number, payload)
	if err != nil {
		return h.handleError(c, err, "failed to generate assessment")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "session assessment created", resp)
}

func (h *LessonPlanHandler) workflow(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var config dto.AssessmentConfig
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&config); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	job, err := h.service.EnqueueWorkflow(requestContext(c), id, config)
	if err != nil {
		return h.handleError(c, err, "failed to start workflow")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "workflow started", job)
}

func (h *LessonPlanHandler) index(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	job, err := h.service.EnqueueIndexing(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err, "failed to start indexing")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "indexing started", job)
}
