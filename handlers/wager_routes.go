// handlers/wager_routes.go
package handlers

import (
	"wager-settlement-system/middleware"
	"wager-settlement-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type wagerIDRequest struct {
	WagerID string `json:"wagerId"`
}

type readyRequest struct {
	WagerID string `json:"wagerId"`
	Ready   bool   `json:"ready"`
}

type voteRequest struct {
	WagerID     string `json:"wagerId"`
	VotedWinner string `json:"votedWinner"`
}

func SetupWagerRoutes(app *fiber.App, wagerService *services.WagerService, requireSession fiber.Handler, log *zap.Logger) {
	// 🔓 Public reads; clients poll these to observe state changes
	app.Get("/wager/:id", func(c *fiber.Ctx) error {
		w, err := wagerService.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"wager": services.NewWagerView(w)})
	})

	app.Get("/wagers/open", func(c *fiber.Ctx) error {
		wagers, err := wagerService.ListOpen(c.UserContext(), c.Query("game"), c.QueryInt("limit", 0))
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"wagers": services.NewWagerViews(wagers)})
	})

	// 🔐 Session routes: the acting identity always comes from the token
	app.Get("/wagers/mine", requireSession, func(c *fiber.Ctx) error {
		wagers, err := wagerService.ListForIdentity(c.UserContext(), middleware.Identity(c), c.QueryInt("limit", 0))
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"wagers": services.NewWagerViews(wagers)})
	})

	app.Post("/wager/create", requireSession, func(c *fiber.Ctx) error {
		var req services.CreateWagerInput
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		w, err := wagerService.Create(c.UserContext(), middleware.Identity(c), req)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"wager": services.NewWagerView(w)})
	})

	app.Post("/wager/join", requireSession, func(c *fiber.Ctx) error {
		var req wagerIDRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		w, err := wagerService.Join(c.UserContext(), middleware.Identity(c), req.WagerID)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"wager": services.NewWagerView(w)})
	})

	app.Post("/wager/ready", requireSession, func(c *fiber.Ctx) error {
		var req readyRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		w, err := wagerService.SetReady(c.UserContext(), middleware.Identity(c), req.WagerID, req.Ready)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"wager": services.NewWagerView(w)})
	})

	app.Post("/wager/start", requireSession, func(c *fiber.Ctx) error {
		var req wagerIDRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		w, err := wagerService.Start(c.UserContext(), middleware.Identity(c), req.WagerID)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"wager": services.NewWagerView(w)})
	})

	app.Post("/wager/vote", requireSession, func(c *fiber.Ctx) error {
		var req voteRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		w, err := wagerService.SubmitVote(c.UserContext(), middleware.Identity(c), req.WagerID, req.VotedWinner)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"wager": services.NewWagerView(w)})
	})

	app.Post("/wager/retract", requireSession, func(c *fiber.Ctx) error {
		var req wagerIDRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		w, err := wagerService.RetractVote(c.UserContext(), middleware.Identity(c), req.WagerID)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"wager": services.NewWagerView(w)})
	})

	app.Post("/wager/cancel", requireSession, func(c *fiber.Ctx) error {
		var req wagerIDRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		w, err := wagerService.Cancel(c.UserContext(), middleware.Identity(c), req.WagerID)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(fiber.Map{"wager": services.NewWagerView(w)})
	})
}
