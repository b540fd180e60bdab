package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/service"
	"github.com/noah-isme/teachmate-api/internal/utils"
)

// ContentCurationHandler runs ad-hoc content curation.
type ContentCurationHandler struct {
	workflow  service.WorkflowService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewContentCurationHandler constructs the handler.
func NewContentCurationHandler(workflow service.WorkflowService, validate *validator.Validate, logger zerolog.Logger) *ContentCurationHandler {
	return &ContentCurationHandler{
		workflow:  workflow,
		validator: validate,
		logger:    logger.With().Str("component", "content_curation_handler").Logger(),
	}
}

// Register binds /content-curation.
func (h *ContentCurationHandler) Register(router fiber.Router, aiLimit fiber.Handler) {
	router.Post("/curate", aiLimit, teacherOnly(h.curate))
}

func (h *ContentCurationHandler) curate(c *fiber.Ctx) error {
	var payload dto.ContentCurationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return respondError(c, h.logger, err, "")
	}

	resp, err := h.workflow.CurateTopics(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to curate content")
	}
	return utils.SendSuccess(c, "content curated successfully", resp)
}
