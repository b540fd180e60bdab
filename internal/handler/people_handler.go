package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/service"
	"github.com/noah-isme/teachmate-api/internal/utils"
)

// PeopleHandler serves teacher, student and parent accounts.
type PeopleHandler struct {
	service service.PeopleService
	logger  zerolog.Logger
}

// NewPeopleHandler constructs the handler.
func NewPeopleHandler(service service.PeopleService, logger zerolog.Logger) *PeopleHandler {
	return &PeopleHandler{
		service: service,
		logger:  logger.With().Str("component", "people_handler").Logger(),
	}
}

// RegisterTeacherSignup binds the public teacher registration.
func (h *PeopleHandler) RegisterTeacherSignup(router fiber.Router) {
	router.Post("/register", h.registerTeacher)
}

// RegisterTeachers binds /teacher.
func (h *PeopleHandler) RegisterTeachers(router fiber.Router) {
	router.Get("/", h.listTeachers)
	router.Get("/subject/:subject", h.listTeachers)
	router.Get("/grade/:grade", h.listTeachers)
	router.Get("/class/:class", h.listTeachers)
	router.Get("/:id", h.getTeacher)
	router.Put("/:id", teacherOnly(h.updateTeacher))
	router.Delete("/:id", teacherOnly(h.deleteTeacher))
}

// RegisterStudents binds /student.
func (h *PeopleHandler) RegisterStudents(router fiber.Router) {
	router.Post("/register", teacherOnly(h.registerStudent))
	router.Get("/", h.listStudents)
	router.Get("/search", h.listStudents)
	router.Get("/grade/:grade", h.listStudents)
	router.Get("/class/:class", h.listStudents)
	router.Get("/:id", h.getStudent)
	router.Put("/:id", teacherOnly(h.updateStudent))
	router.Delete("/:id", teacherOnly(h.deleteStudent))
}

// RegisterParents binds /parents.
func (h *PeopleHandler) RegisterParents(router fiber.Router) {
	router.Post("/register", teacherOnly(h.registerParent))
	router.Get("/", h.listParents)
	router.Get("/search", h.listParents)
	router.Get("/:id", h.getParent)
	router.Put("/:id", teacherOnly(h.updateParent))
	router.Delete("/:id", teacherOnly(h.deleteParent))
}

func (h *PeopleHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, h.logger, err, "internal server error")
}

// peopleQuery merges path filters with ?search, ?q, ?subject, ?grade and ?class.
func peopleQuery(c *fiber.Ctx) service.PeopleQuery {
	query := service.PeopleQuery{
		Search:  c.Query("search", c.Query("q")),
		Subject: c.Query("subject"),
		Grade:   c.Query("grade"),
		Class:   c.Query("class"),
	}
	if v := c.Params("subject"); v != "" {
		query.Subject = v
	}
	if v := c.Params("grade"); v != "" {
		query.Grade = v
	}
	if v := c.Params("class"); v != "" {
		query.Class = v
	}
	return query
}

func (h *PeopleHandler) registerTeacher(c *fiber.Ctx) error {
	var payload dto.TeacherRegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	teacher, err := h.service.RegisterTeacher(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "teacher registered", teacher)
}

func (h *PeopleHandler) listTeachers(c *fiber.Ctx) error {
	teachers, err := h.service.ListTeachers(requestContext(c), peopleQuery(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "teachers retrieved", teachers)
}

func (h *PeopleHandler) getTeacher(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	teacher, err := h.service.GetTeacher(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "teacher retrieved", teacher)
}

func (h *PeopleHandler) updateTeacher(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.TeacherUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	teacher, err := h.service.UpdateTeacher(requestContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "teacher updated", teacher)
}

func (h *PeopleHandler) deleteTeacher(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.service.DeleteTeacher(requestContext(c), id); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "teacher deleted", nil)
}

func (h *PeopleHandler) registerStudent(c *fiber.Ctx) error {
	var payload dto.StudentRegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	student, err := h.service.RegisterStudent(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student registered", student)
}

func (h *PeopleHandler) listStudents(c *fiber.Ctx) error {
	students, err := h.service.ListStudents(requestContext(c), peopleQuery(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "students retrieved", students)
}

func (h *PeopleHandler) getStudent(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	student, err := h.service.GetStudent(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "student retrieved", student)
}

func (h *PeopleHandler) updateStudent(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.StudentUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	student, err := h.service.UpdateStudent(requestContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "student updated", student)
}

func (h *PeopleHandler) deleteStudent(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.service.DeleteStudent(requestContext(c), id); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "student deleted", nil)
}

func (h *PeopleHandler) registerParent(c *fiber.Ctx) error {
	var payload dto.ParentRegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	parent, err := h.service.RegisterParent(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "parent registered", parent)
}

func (h *PeopleHandler) listParents(c *fiber.Ctx) error {
	parents, err := h.service.ListParents(requestContext(c), c.Query("search", c.Query("q")))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "parents retrieved", parents)
}

func (h *PeopleHandler) getParent(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	parent, err := h.service.GetParent(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "parent retrieved", parent)
}

func (h *PeopleHandler) updateParent(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.ParentUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	parent, err := h.service.UpdateParent(requestContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "parent updated", parent)
}

func (h *PeopleHandler) deleteParent(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.service.DeleteParent(requestContext(c), id); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "parent deleted", nil)
}
