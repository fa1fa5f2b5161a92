package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wager-settlement-system/config"
	"wager-settlement-system/handlers"
	"wager-settlement-system/middleware"
	"wager-settlement-system/services"
	"wager-settlement-system/utils"
	"wager-settlement-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	db, err := utils.OpenDatabase(cfg.DatabaseURL, clock)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}

	keys, err := services.DeriveAuthKeys(cfg.Auth.Secret)
	if err != nil {
		logger.Fatal("failed to derive auth keys", zap.Error(err))
	}

	var guard services.NonceGuard
	if cfg.RedisURL != "" {
		redisGuard, err := services.NewRedisNonceGuardFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisGuard.Close()
		guard = redisGuard
		logger.Info("✅ single-use nonce guard enabled (redis)")
	}

	playerService := services.NewPlayerService(db, clock, logger)
	settlementService := services.NewSettlementService(db, clock, logger, cfg.Settlement.PlatformIdentity, cfg.Settlement.FeePercent)
	wagerService := services.NewWagerService(db, clock, logger, playerService, settlementService)
	authService := services.NewAuthService(keys, clock, playerService, guard, logger)

	if cfg.R2.Enabled() {
		archiver, err := utils.NewR2Archiver(ctx, cfg.R2)
		if err != nil {
			logger.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		settlementService.Archiver = archiver
		logger.Info("✅ settlement receipts archived to R2", zap.String("bucket", cfg.R2.Bucket))
	}

	sched, err := services.StartMaintenanceScheduler(ctx, playerService, settlementService, logger)
	if err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	if cfg.Escrow.IndexerURL != "" {
		escrowWorker := workers.NewEscrowSyncWorker(
			workers.NewEscrowSyncClient(cfg.Escrow.IndexerURL, cfg.Auth.ServiceToken),
			settlementService, clock, logger,
		)
		go escrowWorker.Run(ctx, cfg.Escrow.PollInterval)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 64 * 1024,
		AppName:   "wager-settlement-system",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Session, X-Service-Token",
		MaxAge:       86400,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	requireSession := middleware.SessionAuth(authService, logger)
	requireService := middleware.ServiceAuth(cfg.Auth.ServiceToken, logger)

	handlers.SetupAuthRoutes(app, authService, logger)
	handlers.SetupWagerRoutes(app, wagerService, requireSession, logger)
	handlers.SetupPlayerRoutes(app, playerService, settlementService, requireSession, logger)
	handlers.SetupSettlementRoutes(app, settlementService, playerService, requireService, logger)

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	logger.Info("✅ wager settlement service running",
		zap.String("addr", cfg.ListenAddr),
		zap.Int64("fee_percent", cfg.Settlement.FeePercent),
		zap.Strings("origins", cfg.AllowedOrigins),
		zap.Bool("escrow_sync", cfg.Escrow.IndexerURL != ""))

	<-ctx.Done()
	logger.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := sched.Shutdown(); err != nil {
		logger.Error("scheduler shutdown", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
