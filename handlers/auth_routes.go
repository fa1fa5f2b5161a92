// handlers/auth_routes.go
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"wager-settlement-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

const signatureSize = 64

// signatureBytes accepts a JSON array of byte values, as wallet adapters send
// it, or a base58 or base64 string.
type signatureBytes []byte

func (s *signatureBytes) UnmarshalJSON(data []byte) error {
	var nums []int
	if err := json.Unmarshal(data, &nums); err == nil {
		out := make([]byte, len(nums))
		for i, n := range nums {
			if n < 0 || n > 255 {
				return fmt.Errorf("signature byte %d out of range", i)
			}
			out[i] = byte(n)
		}
		*s = out
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("signature must be a byte array or an encoded string")
	}
	str = strings.TrimSpace(str)
	if raw, err := base58.Decode(str); err == nil && len(raw) == signatureSize {
		*s = raw
		return nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if raw, err := enc.DecodeString(str); err == nil {
			*s = raw
			return nil
		}
	}
	return fmt.Errorf("signature string is neither base58 nor base64")
}

type challengeRequest struct {
	Identity string `json:"identity"`
}

type verifyRequest struct {
	Identity       string         `json:"identity"`
	RawMessage     string         `json:"rawMessage"`
	SignatureBytes signatureBytes `json:"signatureBytes"`
}

func SetupAuthRoutes(app *fiber.App, authService *services.AuthService, log *zap.Logger) {
	// 🔓 Public: the only unauthenticated mutations
	app.Post("/auth/challenge", func(c *fiber.Ctx) error {
		var req challengeRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		challenge, err := authService.Challenge(strings.TrimSpace(req.Identity))
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(challenge)
	})

	app.Post("/auth/verify", func(c *fiber.Ctx) error {
		var req verifyRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body: " + err.Error(),
			})
		}
		if req.RawMessage == "" || len(req.SignatureBytes) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "identity, rawMessage and signatureBytes are required",
			})
		}

		session, err := authService.IssueAfterSignatureCheck(c.UserContext(), strings.TrimSpace(req.Identity), req.RawMessage, req.SignatureBytes)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{
			"verified":     true,
			"sessionToken": session.Token,
			"expiresAtMs":  session.Claims.ExpiresAtMs,
		})
	})
}
