package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/middleware"
	"github.com/noah-isme/teachmate-api/internal/service"
	"github.com/noah-isme/teachmate-api/internal/utils"
)

// SubmissionHandler manages submission endpoints.
type SubmissionHandler struct {
	service service.SubmissionService
	grading service.GradingScheduler
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, grading service.GradingScheduler, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		grading: grading,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/submit", middleware.WithAuth(h.submit, middleware.AuthOptions{Role: middleware.AuthRoleStudent}))
	router.Post("/grade/trigger", teacherOnly(h.triggerGrading))
	router.Get("/ungraded/all", teacherOnly(h.listUngraded))
	router.Get("/assessment/:assessmentId", h.listByAssessment)
	router.Get("/student/:studentId", h.listByStudent)
	router.Get("/status/:assessmentId/:studentId", h.status)
	router.Get("/:id", h.get)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, h.logger, err, "internal server error")
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	// students always submit as themselves
	if id := userIDFromContext(c); id > 0 {
		payload.StudentID = id
	}

	submission, err := h.service.Submit(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission received", submission)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	submission, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) listByAssessment(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "assessmentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	submissions, err := h.service.ListByAssessment(requestContext(c), assessmentID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) listByStudent(c *fiber.Ctx) error {
	studentID, err := parseUintParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	submissions, err := h.service.ListByStudent(requestContext(c), studentID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) listUngraded(c *fiber.Ctx) error {
	submissions, err := h.service.ListUngraded(requestContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "ungraded submissions retrieved", submissions)
}

func (h *SubmissionHandler) status(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "assessmentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	studentID, err := parseUintParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	status, err := h.service.Status(requestContext(c), assessmentID, studentID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "submission status", status)
}

func (h *SubmissionHandler) triggerGrading(c *fiber.Ctx) error {
	resp := h.grading.TriggerManual()
	message := "grading started"
	if resp.AlreadyRunning {
		message = "grading already in progress"
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, message, resp)
}
