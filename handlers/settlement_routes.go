// handlers/settlement_routes.go
package handlers

import (
	"strings"

	"wager-settlement-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type resolveRequest struct {
	WagerID        string `json:"wagerId"`
	WinnerIdentity string `json:"winnerIdentity"`
}

type banRequest struct {
	Identity        string `json:"identity"`
	DurationSeconds int64  `json:"durationSeconds"`
}

type escrowAckRequest struct {
	WagerID        string `json:"wagerId"`
	Identity       string `json:"identity"`
	AmountLamports int64  `json:"amountLamports"`
	ExternalTxRef  string `json:"externalTxRef"`
}

// SetupSettlementRoutes mounts the privileged tier. requireService must check
// the operator credential, never a wallet session.
func SetupSettlementRoutes(app *fiber.App, settlementService *services.SettlementService, playerService *services.PlayerService, requireService fiber.Handler, log *zap.Logger) {
	settlement := app.Group("/settlement", requireService)

	settlement.Post("/resolve", func(c *fiber.Ctx) error {
		var req resolveRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		res, err := settlementService.ApplyWinnerSettlement(c.UserContext(), req.WagerID, strings.TrimSpace(req.WinnerIdentity))
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{
			"winnerPayout":   res.Payout.WinnerPayout,
			"platformFee":    res.Payout.PlatformFee,
			"alreadySettled": res.AlreadySettled,
			"wager":          services.NewWagerView(res.Wager),
		})
	})

	settlement.Post("/refundDraw", func(c *fiber.Ctx) error {
		var req wagerIDRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		res, err := settlementService.ApplyDrawSettlement(c.UserContext(), req.WagerID)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{
			"refundAmount":   res.RefundAmount,
			"alreadySettled": res.AlreadySettled,
			"wager":          services.NewWagerView(res.Wager),
		})
	})

	settlement.Post("/ban", func(c *fiber.Ctx) error {
		var req banRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		expires, err := playerService.Ban(c.UserContext(), strings.TrimSpace(req.Identity), req.DurationSeconds)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"banExpiresAt": expires})
	})

	settlement.Post("/escrow-ack", func(c *fiber.Ctx) error {
		var req escrowAckRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		entry, err := settlementService.RecordEscrowAcknowledgement(c.UserContext(), req.WagerID, strings.TrimSpace(req.Identity), req.AmountLamports, req.ExternalTxRef)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"entry": entry})
	})
}
