package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicscribe-backend/internal/config"
	"civicscribe-backend/internal/database"
	"civicscribe-backend/internal/handlers"
	"civicscribe-backend/internal/repository"
	"civicscribe-backend/internal/router"
	"civicscribe-backend/internal/services"
	"civicscribe-backend/internal/worker"
)

func main() {
	log.Println("Starting Civicscribe Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Client ────
	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	transcriptRepo := repository.NewTranscriptRepo(pool)
	queueRepo := repository.NewQueueRepo(pool)

	if n, err := transcriptRepo.Count(context.Background()); err == nil {
		log.Printf("✓ Transcript cache ready (%d transcripts)", n)
	}

	// ──── Initialize Services ────
	ctx := context.Background()

	metadataService, err := services.NewMetadataService(ctx, cfg.YouTubeAPIKey)
	if err != nil {
		log.Fatalf("✗ YouTube Data API client initialization failed: %v", err)
	}

	lister, err := services.NewYouTubeDataLister(ctx, cfg.YouTubeAPIKey)
	if err != nil {
		log.Fatalf("✗ YouTube Data API client initialization failed: %v", err)
	}

	captionService := services.NewCaptionService()
	whisperService := services.NewWhisperService(
		cfg.OpenAIAPIKey,
		cfg.WhisperAudioBitrate,
		cfg.WhisperMaxFileBytes,
		cfg.WhisperChunkSeconds,
	)

	transcriptService := services.NewTranscriptService(
		captionService,
		whisperService,
		metadataService,
		transcriptRepo,
		cfg.FallbackOnAnyError,
	)
	discoveryService := services.NewDiscoveryService(lister, transcriptRepo, queueRepo)
	log.Println("✓ Acquisition services initialized")

	// ──── Step 5: Start Acquisition Worker Pool ────
	workerPool := worker.NewPool(
		redisClient,
		transcriptService,
		queueRepo,
		cfg.DefaultCommittee,
		cfg.AcquisitionDelay,
		cfg.WorkerCount,
	)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Initialize Handlers ────
	transcriptHandler := handlers.NewTranscriptHandler(transcriptService)
	discoveryHandler := handlers.NewDiscoveryHandler(discoveryService, workerPool, cfg.DiscoveryMaxNew)

	// ──── Step 6: Start HTTP Server ────
	r := router.New(transcriptHandler, discoveryHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		// A first-time transcript request is synchronous and can spend
		// minutes on the speech-to-text fallback path.
		WriteTimeout: 20 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("✓ Civicscribe Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
