package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/zistudy/zistudy-backend/internal/ai"
	"github.com/zistudy/zistudy-backend/internal/ai/pdf"
	"github.com/zistudy/zistudy-backend/internal/data/repos"
	"github.com/zistudy/zistudy-backend/internal/db"
	"github.com/zistudy/zistudy-backend/internal/handlers"
	"github.com/zistudy/zistudy-backend/internal/middleware"
	"github.com/zistudy/zistudy-backend/internal/platform/envutil"
	"github.com/zistudy/zistudy-backend/internal/platform/gemini"
	"github.com/zistudy/zistudy-backend/internal/platform/logger"
	"github.com/zistudy/zistudy-backend/internal/server"
	"github.com/zistudy/zistudy-backend/internal/services"
)

func main() {
	_ = godotenv.Load()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	studyCardRepo := repos.NewStudyCardRepo(thePG, log)
	jobRunRepo := repos.NewJobRunRepo(thePG, log)

	// Gemini client + agent
	log.Info("Setting up Gemini client from main...")
	geminiClient, err := gemini.NewClient(log, gemini.ConfigFromEnv())
	if err != nil {
		log.Fatal("Could not init Gemini client", "error", err)
	}
	defer geminiClient.Close()

	agent := ai.NewAgent(log, geminiClient, ai.AgentConfiguration{
		DefaultModel:       geminiClient.DefaultModel(),
		DefaultTemperature: envutil.Float("AI_DEFAULT_TEMPERATURE", 0.35),
		DefaultCardCount:   envutil.Int("AI_DEFAULT_CARD_COUNT", 8),
		MaxCardCount:       envutil.Int("AI_MAX_CARD_COUNT", 20),
		MaxAttempts:        envutil.Int("AI_MAX_ATTEMPTS", 3),
	})

	pdfService := pdf.NewService(log)
	var strategy ai.ContextStrategy
	if envutil.String("PDF_CONTEXT_STRATEGY", "native") == "ingested" {
		strategy = ai.NewIngestedStrategy(log, pdfService)
	} else {
		strategy = ai.NewNativeStrategy(log, pdfService, 0)
	}

	// Services
	log.Info("Setting up services from main...")
	cardService := services.NewStudyCardService(thePG, log, studyCardRepo)
	generationService := services.NewCardGenerationService(log, agent, strategy, cardService, studyCardRepo)

	notifier, err := services.NewRedisJobNotifier(log)
	if err != nil {
		log.Warn("Redis job notifier unavailable; job events disabled", "error", err)
		notifier = services.NewNoopJobNotifier()
	}
	defer notifier.Close()

	jobService := services.NewJobService(
		thePG,
		log,
		jobRunRepo,
		generationService,
		notifier,
		envutil.Int("JOB_WORKER_CONCURRENCY", 4),
	)

	// Handlers
	log.Info("Setting up handlers from main...")
	aiHandler := handlers.NewAIHandler(jobService)
	jobsHandler := handlers.NewJobsHandler(jobService)
	cardsHandler := handlers.NewCardsHandler(cardService)

	// Middleware
	jwtSecretKey := envutil.String("JWT_SECRET_KEY", "defaultsecret")
	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware: authMiddleware,
		AIHandler:      aiHandler,
		JobsHandler:    jobsHandler,
		CardsHandler:   cardsHandler,
	})

	port := envutil.String("PORT", "8080")
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
