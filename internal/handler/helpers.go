package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/middleware"
	"github.com/noah-isme/teachmate-api/internal/service"
	"github.com/noah-isme/teachmate-api/internal/utils"
)

var (
	badRequestErrors = []error{
		service.ErrInvalidDateWindow,
		service.ErrInvalidSessionCount,
		service.ErrInvalidSessionDuration,
		service.ErrInvalidStatus,
		service.ErrInvalidAnswers,
		service.ErrInvalidFileType,
		service.ErrNoTopics,
		service.ErrNotificationEmpty,
		service.ErrUploadMissing,
		service.ErrUploadScanFailed,
		service.ErrUnsupportedSubject,
		service.ErrNoTextbookContent,
		// state conflicts
		service.ErrSessionAlreadyCompleted,
		service.ErrSessionNotCompleted,
		service.ErrLessonPlanNotCompleted,
		service.ErrInvalidTransition,
		service.ErrAssessmentNotActive,
		service.ErrConversationClosed,
	}
	notFoundErrors = []error{
		service.ErrGradeNotFound,
		service.ErrClassNotFound,
		service.ErrSubjectNotFound,
		service.ErrChapterNotFound,
		service.ErrTeacherNotFound,
		service.ErrStudentNotFound,
		service.ErrParentNotFound,
		service.ErrLessonPlanNotFound,
		service.ErrSessionNotFound,
		service.ErrAssessmentNotFound,
		service.ErrSubmissionNotFound,
		service.ErrConversationNotFound,
		service.ErrVoiceCallNotFound,
		service.ErrJobNotFound,
		service.ErrNotificationNotFound,
	}
	conflictErrors = []error{
		service.ErrDuplicateSubmission,
		service.ErrDuplicateAccount,
		service.ErrDuplicateRecord,
		service.ErrGradingInProgress,
	}
)

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// respondError maps service errors onto HTTP statuses. Provider and internal failures are logged
// with the correlation id and answered with fallback instead of the raw cause.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(validationErrors))
	case matchesAny(err, badRequestErrors):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case matchesAny(err, notFoundErrors):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case matchesAny(err, conflictErrors):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrAccountInactive):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrJobQueueFull):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrProviderUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	}

	if fallback == "" {
		fallback = "internal server error"
	}
	requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg(fallback)
	return utils.SendError(c, fiber.StatusInternalServerError, fallback)
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[fieldErr.Field()] = fieldErr.Tag()
	}
	return details
}

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid " + key)
	}
	return uint(parsed), nil
}

func parseIntParam(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return parsed, nil
}

func parseQueryUint(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	result := uint(parsed)
	return &result, nil
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

// requestContext returns the user context of the request carrying its correlation id.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}
