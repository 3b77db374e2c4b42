package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"x402-arcade/config"
	"x402-arcade/handlers"
	"x402-arcade/middleware"
	"x402-arcade/models"
	"x402-arcade/services"
	"x402-arcade/utils"
	"x402-arcade/workers"
	"x402-arcade/x402"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("config error: ", err)
	}

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.AllowedOrigins,
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin, Content-Type, Accept, X-Payment, X-Requested-With",
		ExposeHeaders: "Content-Length, Content-Type, X-Payment-Required",
		MaxAge:        86400, // 24 hours
	}))

	// TranslateError so uniqueness violations surface as gorm.ErrDuplicatedKey —
	// session creation's invariants depend on it.
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.GameSession{},
		&models.PrizePool{},
		&models.UsedNonce{},
		&models.PaymentRecord{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	sessionService := services.NewSessionService(db)
	prizePoolService := services.NewPrizePoolService(db)
	paymentService := services.NewPaymentService(db)

	var facilitator x402.Facilitator
	if cfg.FacilitatorMode == "local" {
		log.Println("⚠️  FACILITATOR_MODE=local — settlement is simulated, do not use in production")
		facilitator = x402.NewLocalFacilitator(cfg.ChainID, cfg.TokenName)
	} else {
		facilitator = x402.NewHTTPFacilitator(cfg.FacilitatorURL)
	}

	// Replay guard: nonce entries must outlive the longest authorization
	// window a client could reasonably sign.
	nonceCache := middleware.NewNonceCache(30 * time.Minute)
	paymentMW := middleware.X402Payment(middleware.PaymentConfig{
		Facilitator: facilitator,
		Nonces:      nonceCache,
		Store:       paymentService,
	})

	playHandler := handlers.NewPlayHandler(cfg, sessionService, prizePoolService, paymentService)
	arcadeHandler := handlers.NewArcadeHandler(cfg, sessionService, prizePoolService)

	handlers.SetupPlayRoutes(app, playHandler, paymentMW)
	handlers.SetupArcadeRoutes(app, arcadeHandler)

	services.StartMaintenanceScheduler(sessionService, prizePoolService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.R2.Enabled() {
		if err := utils.InitR2(cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		archiver := workers.NewReceiptArchiver(paymentService)
		go workers.PollReceipts(ctx, archiver, 1*time.Hour)
		log.Println("✅ Receipt archiver running (hourly)")
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Accepting x402 payments to %s on %s (facilitator: %s)", cfg.PayeeAddress, cfg.Network, cfg.FacilitatorMode)
	log.Println("✅ Maintenance scheduler running (session expiry + pool finalization)")

	<-ctx.Done()
	log.Println("Shutting down server...")
}
