package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/middleware"
	"github.com/noah-isme/teachmate-api/internal/repository"
	"github.com/noah-isme/teachmate-api/internal/service"
	"github.com/noah-isme/teachmate-api/internal/utils"
)

// SchoolHandler serves the grade, class, subject and chapter catalogue.
type SchoolHandler struct {
	service service.SchoolService
	logger  zerolog.Logger
}

// NewSchoolHandler constructs the handler.
func NewSchoolHandler(service service.SchoolService, logger zerolog.Logger) *SchoolHandler {
	return &SchoolHandler{
		service: service,
		logger:  logger.With().Str("component", "school_handler").Logger(),
	}
}

func teacherOnly(handler fiber.Handler) fiber.Handler {
	return middleware.WithAuth(handler, middleware.AuthOptions{Role: middleware.AuthRoleTeacher})
}

// RegisterGrades binds /grade.
func (h *SchoolHandler) RegisterGrades(router fiber.Router) {
	router.Get("/", h.listGrades)
	router.Get("/:id", h.getGrade)
	router.Post("/", teacherOnly(h.createGrade))
	router.Put("/:id", teacherOnly(h.updateGrade))
	router.Delete("/:id", teacherOnly(h.deleteGrade))
}

// RegisterClasses binds /class.
func (h *SchoolHandler) RegisterClasses(router fiber.Router) {
	router.Get("/", h.listClasses)
	router.Get("/:id", h.getClass)
	router.Post("/", teacherOnly(h.createClass))
	router.Put("/:id", teacherOnly(h.updateClass))
	router.Delete("/:id", teacherOnly(h.deleteClass))
}

// RegisterSubjects binds /subject.
func (h *SchoolHandler) RegisterSubjects(router fiber.Router) {
	router.Get("/", h.listSubjects)
	router.Get("/grade/:gradeId", h.listSubjectsByGrade)
	router.Get("/:id", h.getSubject)
	router.Post("/", teacherOnly(h.createSubject))
	router.Put("/:id", teacherOnly(h.updateSubject))
	router.Delete("/:id", teacherOnly(h.deleteSubject))
}

// RegisterChapters binds /chapter.
func (h *SchoolHandler) RegisterChapters(router fiber.Router) {
	router.Get("/subject/:subjectId/grade/:gradeId", h.listChapters)
	router.Get("/subject/:subjectId", h.listChapters)
	router.Get("/grade/:gradeId", h.listChapters)
	router.Get("/", h.listChapters)
	router.Get("/:id", h.getChapter)
	router.Post("/", teacherOnly(h.createChapter))
	router.Put("/:id", teacherOnly(h.updateChapter))
	router.Delete("/:id", teacherOnly(h.deleteChapter))
}

func (h *SchoolHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, h.logger, err, "internal server error")
}

func (h *SchoolHandler) listGrades(c *fiber.Ctx) error {
	grades, err := h.service.ListGrades(requestContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "grades retrieved", grades)
}

func (h *SchoolHandler) getGrade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	grade, err := h.service.GetGrade(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "grade retrieved", grade)
}

func (h *SchoolHandler) createGrade(c *fiber.Ctx) error {
	var payload dto.GradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	grade, err := h.service.CreateGrade(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "grade created", grade)
}

func (h *SchoolHandler) updateGrade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.GradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	grade, err := h.service.UpdateGrade(requestContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "grade updated", grade)
}

func (h *SchoolHandler) deleteGrade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.service.DeleteGrade(requestContext(c), id); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "grade deleted", nil)
}

func (h *SchoolHandler) listClasses(c *fiber.Ctx) error {
	gradeID, err := parseQueryUint(c, "grade_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	classes, err := h.service.ListClasses(requestContext(c), gradeID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "classes retrieved", classes)
}

func (h *SchoolHandler) getClass(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	class, err := h.service.GetClass(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "class retrieved", class)
}

func (h *SchoolHandler) createClass(c *fiber.Ctx) error {
	var payload dto.ClassRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	class, err := h.service.CreateClass(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "class created", class)
}

func (h *SchoolHandler) updateClass(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.ClassRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	class, err := h.service.UpdateClass(requestContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "class updated", class)
}

func (h *SchoolHandler) deleteClass(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.service.DeleteClass(requestContext(c), id); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "class deleted", nil)
}

func (h *SchoolHandler) listSubjects(c *fiber.Ctx) error {
	gradeID, err := parseQueryUint(c, "grade_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	subjects, err := h.service.ListSubjects(requestContext(c), gradeID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "subjects retrieved", subjects)
}

func (h *SchoolHandler) listSubjectsByGrade(c *fiber.Ctx) error {
	gradeID, err := parseUintParam(c, "gradeId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	subjects, err := h.service.ListSubjects(requestContext(c), &gradeID)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "subjects retrieved", subjects)
}

func (h *SchoolHandler) getSubject(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	subject, err := h.service.GetSubject(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "subject retrieved", subject)
}

func (h *SchoolHandler) createSubject(c *fiber.Ctx) error {
	var payload dto.SubjectRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	subject, err := h.service.CreateSubject(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "subject created", subject)
}

func (h *SchoolHandler) updateSubject(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.SubjectRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	subject, err := h.service.UpdateSubject(requestContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "subject updated", subject)
}

func (h *SchoolHandler) deleteSubject(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.service.DeleteSubject(requestContext(c), id); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "subject deleted", nil)
}

// listChapters serves every chapter listing; the path decides which filters apply.
func (h *SchoolHandler) listChapters(c *fiber.Ctx) error {
	var filter repository.ChapterFilter
	if c.Params("subjectId") != "" {
		subjectID, err := parseUintParam(c, "subjectId")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		filter.SubjectID = &subjectID
	}
	if c.Params("gradeId") != "" {
		gradeID, err := parseUintParam(c, "gradeId")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		filter.GradeID = &gradeID
	}

	chapters, err := h.service.ListChapters(requestContext(c), filter)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "chapters retrieved", chapters)
}

func (h *SchoolHandler) getChapter(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	chapter, err := h.service.GetChapter(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "chapter retrieved", chapter)
}

func (h *SchoolHandler) createChapter(c *fiber.Ctx) error {
	var payload dto.ChapterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	chapter, err := h.service.CreateChapter(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "chapter created", chapter)
}

func (h *SchoolHandler) updateChapter(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.ChapterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	chapter, err := h.service.UpdateChapter(requestContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "chapter updated", chapter)
}

func (h *SchoolHandler) deleteChapter(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.service.DeleteChapter(requestContext(c), id); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "chapter deleted", nil)
}
