package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

func jsonSuccess(c *fiber.Ctx, status int, payload any) error {
	return c.Status(status).JSON(fiber.Map{"status": "ok", "data": payload})
}

func jsonError(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(fiber.Map{"status": "error", "error": msg, "code": code})
}

// statusFor maps a handler error to its HTTP status and client code.
// Internal failures are masked.
func statusFor(err error) (int, string, string) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
			return fe.Code, "validation", fe.Message
		case fiber.StatusUnauthorized:
			return fe.Code, "unauthenticated", fe.Message
		case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
			return fe.Code, "not_found", fe.Message
		}
		if fe.Code < fiber.StatusInternalServerError {
			return fe.Code, "validation", fe.Message
		}
		return fe.Code, "internal", fe.Message
	}

	code := domain.ErrorCode(err)
	switch code {
	case "validation":
		return fiber.StatusBadRequest, code, err.Error()
	case "unauthorized", "window_expired":
		return fiber.StatusForbidden, code, err.Error()
	case "not_found":
		return fiber.StatusNotFound, code, err.Error()
	}
	return fiber.StatusInternalServerError, "internal", "internal error"
}
