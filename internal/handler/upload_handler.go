package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/service"
	"github.com/noah-isme/teachmate-api/internal/utils"
)

// UploadHandler serves the materials attached to lesson plan sessions.
type UploadHandler struct {
	materials service.UploadService
	logger    zerolog.Logger
}

func NewUploadHandler(materials service.UploadService, logger zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		materials: materials,
		logger:    logger.With().Str("component", "upload_handler").Logger(),
	}
}

// Register binds the session resource routes under /lesson-plan.
func (h *UploadHandler) Register(router fiber.Router) {
	router.Get("/:id/session/:n/resources", h.list)
	router.Post("/:id/session/:n/resources", teacherOnly(h.upload))
}

// sessionTarget reads the plan id and session number from the path.
func sessionTarget(c *fiber.Ctx) (uint, int, error) {
	planID, err := parseUintParam(c, "id")
	if err != nil {
		return 0, 0, err
	}
	number, err := parseIntParam(c, "n")
	if err != nil {
		return 0, 0, fiber.NewError(fiber.StatusBadRequest, "invalid session number")
	}
	return planID, number, nil
}

func (h *UploadHandler) list(c *fiber.Ctx) error {
	planID, number, err := sessionTarget(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	items, err := h.materials.ListMaterials(requestContext(c), planID, number)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load materials")
	}
	return utils.SendSuccess(c, "materials", items)
}

func (h *UploadHandler) upload(c *fiber.Ctx) error {
	planID, number, err := sessionTarget(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	request := dto.MaterialUploadRequest{Title: c.FormValue("title")}
	if teacherID := userIDFromContext(c); teacherID != 0 {
		request.TeacherID = &teacherID
	}

	material, err := h.materials.UploadMaterial(requestContext(c), planID, number, request, file)
	if err != nil {
		return respondError(c, h.logger, err, "upload failed")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "material uploaded", material)
}
