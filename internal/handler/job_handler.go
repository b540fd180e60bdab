package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/service"
	"github.com/noah-isme/teachmate-api/internal/utils"
)

// JobHandler lets clients poll background jobs.
type JobHandler struct {
	runner service.JobRunner
	logger zerolog.Logger
}

// NewJobHandler constructs the handler.
func NewJobHandler(runner service.JobRunner, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		runner: runner,
		logger: logger.With().Str("component", "job_handler").Logger(),
	}
}

// Register binds /jobs.
func (h *JobHandler) Register(router fiber.Router) {
	router.Get("/:id", h.get)
}

func (h *JobHandler) get(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Params("id"))
	if jobID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "job id required")
	}

	job, err := h.runner.Get(requestContext(c), jobID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load job")
	}
	return utils.SendSuccess(c, "job retrieved", job)
}
