// Atelier orchestrator server — provides the HTTP API, manages queue
// workers, and drives generation requests through the optimize, generate,
// evaluate loop.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/atelierhq/atelier/pkg/api"
	"github.com/atelierhq/atelier/pkg/cleanup"
	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/database"
	"github.com/atelierhq/atelier/pkg/events"
	"github.com/atelierhq/atelier/pkg/imagegen"
	"github.com/atelierhq/atelier/pkg/judge"
	"github.com/atelierhq/atelier/pkg/llm"
	"github.com/atelierhq/atelier/pkg/optimizer"
	"github.com/atelierhq/atelier/pkg/pipeline"
	"github.com/atelierhq/atelier/pkg/queue"
	"github.com/atelierhq/atelier/pkg/rag"
	"github.com/atelierhq/atelier/pkg/services"
	"github.com/atelierhq/atelier/pkg/storage"
	"github.com/atelierhq/atelier/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env from the config directory before reading the environment.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	podID := resolvePodID()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting Atelier",
		"version", version.Full(),
		"addr", cfg.Server.Addr(),
		"pod_id", podID,
		"workers", cfg.Queue.WorkerCount)

	// Database: pool + migrations.
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	// Object storage for images and documents.
	objectStore, err := storage.NewStore(ctx, *cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize object storage", "error", err)
		os.Exit(1)
	}

	// LLM client: completions, embeddings, and the raw genai surface for
	// image generation.
	llmClient, err := llm.NewClient(ctx, *cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}

	// Domain services.
	pool := dbClient.Pool()
	requestService := services.NewRequestService(pool)
	imageService := services.NewImageService(pool)
	agentService := services.NewAgentService(pool)
	documentService := services.NewDocumentService(pool)
	optimizerService := services.NewOptimizerConfigService(pool)
	slog.Info("Services initialized")

	// Retrieval, panel, optimizer, image backend.
	ragIndex := rag.NewIndex(documentService, llmClient, *cfg.RAG)
	evaluator := judge.NewEvaluator(llmClient, ragIndex)
	promptOptimizer := optimizer.NewOptimizer(llmClient, optimizerService)
	generator := imagegen.New(*cfg.LLM, llmClient.Raw())

	bus := events.NewBus()
	cancels := pipeline.NewCancelRegistry()

	executor := pipeline.NewExecutor(*cfg.Pipeline, pipeline.Deps{
		Requests:  requestService,
		Images:    imageService,
		Agents:    agentService,
		Store:     objectStore,
		Generator: generator,
		Evaluator: evaluator,
		Optimizer: promptOptimizer,
		Retriever: ragIndex,
		Bus:       bus,
		Cancels:   cancels,
	})

	// Worker pool. Requeue anything a previous incarnation of this pod left
	// claimed before workers start polling.
	workerPool := queue.NewWorkerPool(podID, requestService, cfg.Queue, executor)
	if err := queue.CleanupStartupOrphans(ctx, requestService, workerPool); err != nil {
		slog.Error("Failed to cleanup startup orphans", "error", err)
		// Non-fatal — the periodic orphan scan covers anything missed.
	}
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// Retention.
	var retention *cleanup.Service
	if cfg.Retention.Enabled {
		retention = cleanup.NewService(cfg.Retention, requestService, imageService, objectStore)
		retention.Start(ctx)
	}

	// HTTP server.
	httpServer := api.NewServer(cfg.Server, api.Deps{
		Requests:  requestService,
		Images:    imageService,
		Agents:    agentService,
		Documents: documentService,
		Optimizer: optimizerService,
		Indexer:   ragIndex,
		Store:     objectStore,
		Bus:       bus,
		Cancels:   cancels,
		Pool:      workerPool,
		DB:        pool,
	})
	httpServer.Start()

	slog.Info("Atelier started successfully", "pod_id", podID)

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("Shutdown signal received", "signal", sig)

	// Graceful shutdown: stop intake first, then drain workers, then stop
	// the retention loop.
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown incomplete", "error", err)
	}

	poolDone := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(poolDone)
	}()
	select {
	case <-poolDone:
		slog.Info("Worker pool stopped gracefully")
	case <-time.After(cfg.Queue.GracefulShutdownTimeout):
		slog.Warn("Worker pool shutdown timeout exceeded")
	}

	if retention != nil {
		retention.Stop()
	}

	slog.Info("Atelier stopped")
}
