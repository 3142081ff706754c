package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/sagewell/transcripta-backend/internal/clients/openai"
	"github.com/sagewell/transcripta-backend/internal/clients/pinecone"
	ingestrepo "github.com/sagewell/transcripta-backend/internal/data/repos/ingest"
	"github.com/sagewell/transcripta-backend/internal/db"
	"github.com/sagewell/transcripta-backend/internal/handlers"
	"github.com/sagewell/transcripta-backend/internal/ingestion"
	"github.com/sagewell/transcripta-backend/internal/pkg/env"
	"github.com/sagewell/transcripta-backend/internal/pkg/logger"
	"github.com/sagewell/transcripta-backend/internal/server"
	"github.com/sagewell/transcripta-backend/internal/services"
)

func main() {
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

	// Env
	log.Info("Loading environment variables from main...")
	port := env.Get("PORT", "8080", log)
	llmRPS := env.GetFloat("INGEST_LLM_RPS", 0.5, log)
	llmBurst := env.GetInt("INGEST_LLM_BURST", 1, log)
	episodeRPS := env.GetFloat("INGEST_EPISODE_RPS", 0.2, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	batchRepo := ingestrepo.NewBatchRepo(thePG, log)
	episodeRepo := ingestrepo.NewEpisodeRepo(thePG, log)

	// Clients
	log.Info("Setting up Clients from main...")
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	pineconeClient, err := pinecone.New(log, pinecone.Config{
		APIKey:     os.Getenv("PINECONE_API_KEY"),
		APIVersion: env.Get("PINECONE_API_VERSION", "2025-10", log),
		Timeout:    time.Duration(env.GetInt("PINECONE_TIMEOUT_SECONDS", 30, log)) * time.Second,
	})
	if err != nil {
		log.Error("Could not init PineconeClient", "error", err)
		os.Exit(1)
	}
	vectorStore, err := pinecone.NewVectorStore(log, pineconeClient)
	if err != nil {
		log.Error("Could not init VectorStore", "error", err)
		os.Exit(1)
	}

	// Pipeline
	log.Info("Setting up ingestion pipeline from main...")
	llmLimiter := rate.NewLimiter(rate.Limit(llmRPS), llmBurst)
	episodeLimiter := rate.NewLimiter(rate.Limit(episodeRPS), 1)

	extractor := ingestion.NewExtractor(thePG, log, batchRepo, episodeRepo)
	classifier := ingestion.NewClassifier(log, openaiClient, llmLimiter)
	processor := ingestion.NewProcessor(log, openaiClient, llmLimiter)
	uploader := ingestion.NewUploader(log, openaiClient, vectorStore, episodeRepo)
	orchestrator := ingestion.NewOrchestrator(thePG, log, batchRepo, episodeRepo, extractor, classifier, processor, uploader, episodeLimiter)
	recovery := ingestion.NewRecoveryScanner(log, batchRepo, orchestrator)

	// Services
	log.Info("Setting up Services from main...")
	ingestService := services.NewIngestService(thePG, log, batchRepo, episodeRepo, orchestrator, recovery)

	// Crash recovery runs in the background so startup is not gated on
	// however many batches the previous process left behind.
	go func() {
		if _, err := ingestService.RecoverStuckBatches(context.Background()); err != nil {
			log.Error("Recovery scan failed", "error", err)
		}
	}()

	// Handlers
	log.Info("Setting up handlers from main...")
	ingestHandler := handlers.NewIngestHandler(ingestService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		IngestHandler: ingestHandler,
	})

	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
