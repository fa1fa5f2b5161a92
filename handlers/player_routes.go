// handlers/player_routes.go
package handlers

import (
	"wager-settlement-system/middleware"
	"wager-settlement-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupPlayerRoutes(app *fiber.App, playerService *services.PlayerService, settlementService *services.SettlementService, requireSession fiber.Handler, log *zap.Logger) {
	app.Get("/player/me", requireSession, func(c *fiber.Ctx) error {
		player, err := playerService.EnsurePlayer(c.UserContext(), middleware.Identity(c))
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{
			"player":       player,
			"earnings_sol": services.FormatSOL(player.TotalEarnings),
			"wagered_sol":  services.FormatSOL(player.TotalWagered),
			"banned":       player.BannedAt(playerService.Clock.Now()),
		})
	})

	app.Post("/player/me", requireSession, func(c *fiber.Ctx) error {
		var req services.ProfileUpdate
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		player, err := playerService.UpdateProfile(c.UserContext(), middleware.Identity(c), req)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"player": player})
	})

	// History views: ledger by wager is public, by identity needs the owner's session
	app.Get("/ledger/wager/:id", func(c *fiber.Ctx) error {
		entries, err := settlementService.LedgerForWager(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"entries": services.NewLedgerViews(entries)})
	})

	app.Get("/ledger/mine", requireSession, func(c *fiber.Ctx) error {
		entries, err := settlementService.LedgerForIdentity(c.UserContext(), middleware.Identity(c), c.QueryInt("limit", 0))
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"entries": services.NewLedgerViews(entries)})
	})
}
