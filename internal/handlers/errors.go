package handlers

import (
	"errors"

	"ecofinds/internal/logger"
	"ecofinds/internal/services"

	"github.com/gofiber/fiber/v2"
)

// respondError writes the error body for err with the status its kind maps
// to. Unexpected errors are logged and reported without internals.
func respondError(c *fiber.Ctx, log *logger.Logger, message string, err error) error {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		body := fiber.Map{
			"message": message,
			"error":   validationErr.Message,
		}
		if len(validationErr.Fields) > 0 {
			body["errors"] = validationErr.Fields
		}
		return c.Status(fiber.StatusBadRequest).JSON(body)
	case errors.Is(err, services.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": message, "error": err.Error()})
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": message, "error": err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": message, "error": services.ErrUnauthorized.Error()})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": message, "error": err.Error()})
	}

	log.Error(message, "error", err, "method", c.Method(), "path", c.Path(), "request_id", c.GetRespHeader(fiber.HeaderXRequestID))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": message,
		"error":   "internal server error",
	})
}

func badRequest(c *fiber.Ctx, message string, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": message,
		"error":   err.Error(),
	})
}

// idParam reads a positive integer route parameter.
func idParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	return uint(id), nil
}
