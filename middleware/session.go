// middleware/session.go
package middleware

import (
	"errors"
	"strings"

	"wager-settlement-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	SessionHeader = "x-session"
	localIdentity = "identity"
)

// SessionValidator resolves a session token to the identity it binds.
type SessionValidator interface {
	Validate(token string) (string, error)
}

// SessionAuth requires a valid wallet session and stores the bound identity
// for handlers. Client-supplied identity fields are never trusted.
func SessionAuth(v SessionValidator, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Get(SessionHeader))
		if token == "" {
			return reject(c, fiber.StatusUnauthorized, "session token missing", services.ReasonSessionInvalid)
		}

		identity, err := v.Validate(token)
		if err != nil {
			var e *services.Error
			if errors.As(err, &e) && e.Kind == services.KindUnauthorized {
				log.Debug("[SESSION] rejected", zap.String("path", c.Path()), zap.String("reason", e.Reason))
				return reject(c, fiber.StatusUnauthorized, e.Msg, e.Reason)
			}
			log.Error("[SESSION] validation failed", zap.Error(err))
			return reject(c, fiber.StatusInternalServerError, "internal error", "")
		}

		c.Locals(localIdentity, identity)
		return c.Next()
	}
}

// Identity returns the identity stored by SessionAuth, or "".
func Identity(c *fiber.Ctx) string {
	identity, _ := c.Locals(localIdentity).(string)
	return identity
}
