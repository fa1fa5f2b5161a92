// handlers/respond.go
package handlers

import (
	"errors"

	"wager-settlement-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindUnauthorized:
		return fiber.StatusUnauthorized
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindInvalidState, services.KindAlreadyVoted:
		return fiber.StatusConflict
	case services.KindInvalidInput:
		return fiber.StatusBadRequest
	case services.KindForbidden:
		return fiber.StatusForbidden
	}
	return fiber.StatusInternalServerError
}

// writeError renders a service failure. Internal errors are logged in full and
// masked for the caller; every other kind is echoed verbatim.
func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var e *services.Error
	if !errors.As(err, &e) {
		e = services.Internal("unclassified", err)
	}
	if e.Kind == services.KindInternal {
		log.Error("❌ [HTTP] internal error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	body := fiber.Map{"error": e.Msg}
	if e.Reason != "" {
		body["reason"] = e.Reason
	}
	return c.Status(statusFor(e.Kind)).JSON(body)
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
}
