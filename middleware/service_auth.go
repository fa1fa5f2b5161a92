// middleware/service_auth.go
package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ServiceAuth guards the privileged settlement tier with the operator token.
// Wallet session tokens are never accepted here.
func ServiceAuth(expectedToken string, log *zap.Logger) fiber.Handler {
	if expectedToken == "" {
		log.Fatal("❌ SETTLEMENT_SERVICE_TOKEN is not set, settlement routes cannot authenticate callers")
	}
	expected := []byte(expectedToken)

	return func(c *fiber.Ctx) error {
		token := c.Get("X-Service-Token")
		if token == "" {
			// Accept "Bearer <token>" as well as a raw Authorization value
			authHeader := c.Get(fiber.HeaderAuthorization)
			token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		}
		if token == "" {
			log.Warn("🚫 [SERVICE_AUTH] missing service token", zap.String("path", c.Path()))
			return reject(c, fiber.StatusUnauthorized, "service authentication token missing", "")
		}
		if subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			log.Warn("❌ [SERVICE_AUTH] invalid service token", zap.String("path", c.Path()))
			return reject(c, fiber.StatusUnauthorized, "invalid service authentication token", "")
		}
		return c.Next()
	}
}

func reject(c *fiber.Ctx, status int, msg, reason string) error {
	body := fiber.Map{"error": msg}
	if reason != "" {
		body["reason"] = reason
	}
	return c.Status(status).JSON(body)
}
