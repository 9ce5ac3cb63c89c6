package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bounty-service/handlers"
	"bounty-service/middleware"
	"bounty-service/models"
	"bounty-service/services"
	"bounty-service/utils"
	"bounty-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(&models.BountyRecord{}); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// The manager cannot safely start without a consistent view of the
	// persisted bounties, so a load failure here is fatal.
	store := services.NewBountyStore()
	if err := store.LoadAll(db); err != nil {
		log.Fatal("failed to load persisted bounties:", err)
	}

	ledger := workers.NewLedgerClient()
	presence := workers.NewPresenceClient()
	broadcaster := services.NewEventBroadcaster()

	expiryScheduler, err := services.NewExpiryScheduler(store)
	if err != nil {
		log.Fatal("failed to start expiry scheduler:", err)
	}
	trackingScheduler, err := services.NewTrackingScheduler(store, presence, presence, envDuration("TRACKING_INTERVAL", 5*time.Second))
	if err != nil {
		log.Fatal("failed to start tracking scheduler:", err)
	}

	manager := services.NewBountyManager(store, expiryScheduler, trackingScheduler, ledger, broadcaster, presence, services.BountyManagerConfig{
		MinReward:       envFloat("MIN_BOUNTY_REWARD", 50),
		DefaultDuration: envDuration("DEFAULT_BOUNTY_EXPIRY", 24*time.Hour),
		MaxDuration:     envDuration("MAX_BOUNTY_EXPIRY", 72*time.Hour),
		PlaceCooldown:   envDuration("BOUNTY_PLACE_COOLDOWN", 60*time.Second),
		BoardPageSize:   envInt("BOARD_PAGE_SIZE", 9),
	})

	// Re-arm expiry timers from persisted absolute deadlines. Bounties whose
	// deadline passed during downtime fire immediately.
	expiryScheduler.RecoverAll(store.ListActive())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go workers.PollBalances(ctx, ledger, envDuration("LEDGER_POLL_INTERVAL", 30*time.Second))
	go workers.PollPresence(ctx, presence, envDuration("PRESENCE_POLL_INTERVAL", 5*time.Second))

	handlers.SetupBountyRoutes(app, &handlers.BountyHandler{
		Manager: manager,
		Events:  broadcaster,
		Store:   store,
		DB:      db,
	})

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Ledger balance polling running")
	log.Println("✅ Presence polling running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")

	<-ctx.Done()
	log.Println("Shutting down server...")

	// Shutdown-save failures are logged, not fatal: the process is already
	// terminating and the next start recovers from the last good snapshot.
	if err := store.SaveAll(db); err != nil {
		log.Printf("❌ Failed to save bounties on shutdown: %v", err)
	} else if utils.SnapshotBackupEnabled() {
		payload, _ := json.Marshal(store.Records())
		if key, err := utils.UploadSnapshotToR2(context.Background(), payload); err != nil {
			log.Printf("Snapshot backup failed: %v", err)
		} else {
			log.Printf("Snapshot backup uploaded: %s", key)
		}
	}

	if err := trackingScheduler.Shutdown(); err != nil {
		log.Printf("Failed to stop tracking scheduler: %v", err)
	}
	if err := expiryScheduler.Shutdown(); err != nil {
		log.Printf("Failed to stop expiry scheduler: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("Failed to stop HTTP server: %v", err)
	}
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := utils.ParseDuration(raw)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %s", name, raw, fallback)
		return fallback
	}
	return d
}

func envFloat(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %v", name, raw, fallback)
		return fallback
	}
	return f
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %d", name, raw, fallback)
		return fallback
	}
	return n
}
