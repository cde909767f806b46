package middleware

import (
	"errors"

	"backend-postboard/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const genericServerError = "server error"

// ErrorHandler renders every error as {"message": ...}. Taxonomy errors keep their
// message; unexpected failures are logged and replaced with a generic message.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		message := genericServerError

		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			status = fe.Code
			message = fe.Message
		case apperr.KindOf(err) != apperr.KindInternal:
			status = apperr.StatusCode(err)
			message = err.Error()
		}

		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
			if fe == nil {
				message = genericServerError
			}
		}
		return c.Status(status).JSON(fiber.Map{"message": message})
	}
}
