package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"coin-reward-system/handlers"
	"coin-reward-system/models"
	"coin-reward-system/services"
	"coin-reward-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Config carries every externally supplied value; it is built once in
// main and injected into the services, never read from globals.
type Config struct {
	BotToken    string
	BotUsername string
	AdminIDs    map[int64]bool
	ChannelLink string
	DatabaseURL string
	UploadDir   string
	Port        string
	Origins     string
}

func loadConfig() Config {
	cfg := Config{
		BotToken:    strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		BotUsername: strings.TrimSpace(os.Getenv("BOT_USERNAME")),
		ChannelLink: os.Getenv("CHANNEL_LINK"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Port:        os.Getenv("PORT"),
		Origins:     os.Getenv("ALLOWED_ORIGINS"),
		AdminIDs:    map[int64]bool{},
	}

	for _, part := range strings.Split(os.Getenv("ADMIN_IDS"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("⚠️  Ignoring non-numeric admin id %q", part)
			continue
		}
		cfg.AdminIDs[id] = true
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	cfg.UploadDir = filepath.Join(dataDir, uploadDir)

	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.BotToken == "" {
		log.Println("⚠️  BOT_TOKEN not set, session verification and membership checks will refuse everything")
	}
	return cfg
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	cfg := loadConfig()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Task{},
		&models.Submission{},
		&models.Verifier{},
		&models.Referral{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if err := utils.EnsureDir(cfg.UploadDir); err != nil {
		log.Fatal("failed to ensure upload dir:", err)
	}

	mirror, err := utils.NewR2UploaderFromEnv()
	if err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}
	if mirror != nil {
		log.Println("✅ R2 proof mirroring enabled")
	}

	membership := services.NewChannelMembershipClient(cfg.BotToken, cfg.ChannelLink)

	ledger := services.NewLedgerService(db, membership, cfg.ChannelLink)
	taskService := services.NewTaskService(db)
	submissionService := services.NewSubmissionService(db, ledger, membership, cfg.AdminIDs, cfg.UploadDir, mirror)
	referralService := services.NewReferralService(db, ledger, cfg.BotUsername)
	leaderboardService := services.NewLeaderboardService(db)
	verifierService := services.NewVerifierService(db)

	app := fiber.New(fiber.Config{
		BodyLimit: 25 * 1024 * 1024, // proof images only
	})

	origins := cfg.Origins
	if origins == "" {
		log.Println("⚠️  ALLOWED_ORIGINS not set, using default: http://localhost:3000")
		origins = "http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, X-Telegram-Init-Data",
	}))

	handlers.SetupWebAppRoutes(app, cfg.BotToken, cfg.AdminIDs, cfg.UploadDir,
		ledger, taskService, submissionService, referralService, leaderboardService, verifierService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()
	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
