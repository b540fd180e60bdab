package utils

import "github.com/gofiber/fiber/v2"

// APIResponse is the envelope every JSON endpoint answers with, except the voice callbacks
// which reply in the provider's own format.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *PageMeta   `json:"meta,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// PageMeta describes one page of a limit/offset listing.
type PageMeta struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Count   int  `json:"count"`
	HasMore bool `json:"has_more"`
}

// SendSuccess answers 200 with data.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus answers a success envelope with status, e.g. 201 or 202.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(APIResponse{
		Success: true,
		Message: orDefault(message, "success"),
		Data:    data,
	})
}

// SendPage answers 200 with one page of items. count is the page length; a full page
// signals there may be more.
func SendPage(c *fiber.Ctx, message string, items interface{}, count, limit, offset int) error {
	return c.Status(fiber.StatusOK).JSON(APIResponse{
		Success: true,
		Message: orDefault(message, "success"),
		Data:    items,
		Meta: &PageMeta{
			Limit:   limit,
			Offset:  offset,
			Count:   count,
			HasMore: limit > 0 && count >= limit,
		},
	})
}

// SendError answers a failure envelope without details.
func SendError(c *fiber.Ctx, status int, message string) error {
	return Fail(c, status, message, nil)
}

// Fail answers a failure envelope. details carries field errors or a diagnostic payload.
func Fail(c *fiber.Ctx, status int, message string, details interface{}) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Message: orDefault(message, "error"),
		Details: details,
	})
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
