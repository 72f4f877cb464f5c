package main

// @title           Timeline Core API
// @version         1.0
// @description     Google Drive retrieval pipeline: listing, ingestion, embeddings, semantic search and grounded chat.

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/timeline-core/internal/adapters/driven/ai"
	"github.com/custodia-labs/timeline-core/internal/adapters/driven/auth"
	"github.com/custodia-labs/timeline-core/internal/adapters/driven/connectors/gdrive"
	"github.com/custodia-labs/timeline-core/internal/adapters/driven/extract"
	"github.com/custodia-labs/timeline-core/internal/adapters/driven/postgres"
	postgresqueue "github.com/custodia-labs/timeline-core/internal/adapters/driven/queue/postgres"
	redisadapter "github.com/custodia-labs/timeline-core/internal/adapters/driven/redis"
	"github.com/custodia-labs/timeline-core/internal/adapters/driving/http"
	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
	"github.com/custodia-labs/timeline-core/internal/core/services"
	"github.com/custodia-labs/timeline-core/internal/normalisers"
	"github.com/custodia-labs/timeline-core/internal/postprocessors"
	"github.com/custodia-labs/timeline-core/internal/runtime"
	"github.com/custodia-labs/timeline-core/internal/worker"
)

var version = "dev"

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	cfg := loadConfig()
	if len(os.Args) > 1 {
		cfg.Mode = os.Args[1]
	}
	switch cfg.Mode {
	case "api", "worker", "all":
	default:
		log.Fatalf("Unknown mode: %s (use: api, worker, or all)", cfg.Mode)
	}

	logger := setupLogger(cfg.LogFormat, cfg.LogLevel)
	log.Printf("timeline-core %s starting in %s mode", version, cfg.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ===== Initialize PostgreSQL =====
	log.Println("Connecting to PostgreSQL...")
	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize schema (idempotent)
	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	vectorVersion, err := db.VectorVersion(ctx)
	if err != nil {
		log.Fatalf("Failed to verify pgvector: %v", err)
	}
	log.Printf("PostgreSQL connected and schema initialized (pgvector %s)", vectorVersion)

	// ===== Initialize Redis (optional) =====
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		log.Println("Connecting to Redis...")
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Redis connected")
	}

	// ===== Credential encryption =====
	if cfg.EncryptionKey == "" {
		log.Fatalf("ENCRYPTION_KEY is required to store Google Drive credentials")
	}
	encryptor, err := postgres.NewSecretEncryptorFromPassphrase(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize credential encryption: %v", err)
	}

	// ===== PostgreSQL Stores =====
	fileRefStore := postgres.NewFileRefStore(db)
	artifactStore := postgres.NewArtifactStore(db)
	embeddingStore := postgres.NewEmbeddingStore(db)
	indexStateStore := postgres.NewIndexStateStore(db)
	chatStore := postgres.NewChatStore(db)
	credentialStore := postgres.NewCredentialStore(db, encryptor)
	taskQueue := postgresqueue.NewQueue(db.DB)

	// ===== Locks and usage counters (Redis if available, otherwise PostgreSQL) =====
	stateBackend := "postgres"
	var distributedLock driven.DistributedLock
	var usageStore driven.UsageStore
	var redisPinger http.Pinger
	if redisClient != nil {
		stateBackend = "redis"
		redisLock := redisadapter.NewLock(redisClient)
		distributedLock = redisLock
		redisPinger = redisLock
		usageStore = redisadapter.NewUsageStore(redisClient)
		log.Println("Using Redis distributed lock and usage counters")
	} else {
		distributedLock = postgres.NewAdvisoryLock(db)
		usageStore = postgres.NewUsageStore(db)
		log.Println("Using PostgreSQL advisory lock and usage counters")
	}

	// ===== AI services =====
	runtimeServices := runtime.NewServices(domain.NewRuntimeConfig(stateBackend))
	defer runtimeServices.Close()

	aiFactory := ai.NewFactory(ai.FactoryConfig{
		Provider:            cfg.AIProvider,
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		EmbeddingBatchSize:  cfg.EmbeddingBatchSize,
		EmbeddingRPS:        cfg.EmbeddingRPS,
		ChatModel:           cfg.ChatModel,
		QueryCacheSize:      cfg.QueryCacheSize,
		QueryCacheTTL:       cfg.QueryCacheTTL,
		Logger:              logger,
	})
	embeddingService, err := aiFactory.CreateEmbeddingService()
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}
	if embeddingService != nil {
		runtimeServices.SetEmbeddingService(embeddingService)
	}
	llmService, err := aiFactory.CreateLLMService()
	if err != nil {
		log.Fatalf("Failed to create LLM service: %v", err)
	}
	if llmService != nil {
		runtimeServices.SetLLMService(llmService)
	}

	runtimeConfig := runtimeServices.Config()
	log.Printf("Runtime config: state_backend=%s, embedding=%t, chat=%t",
		runtimeConfig.StateBackend,
		runtimeConfig.EmbeddingAvailable(),
		runtimeConfig.ChatAvailable())

	// ===== Google Drive =====
	if cfg.GoogleClientID == "" {
		log.Println("Warning: GOOGLE_CLIENT_ID not set, expired Drive tokens cannot be refreshed")
	}
	driveSource := gdrive.NewSource(gdrive.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Credentials:  credentialStore,
		Extractor:    extract.NewDocconvExtractor(logger),
		Logger:       logger,
	})

	// ===== Services (core business logic) =====
	usageLedger := services.NewUsageLedger(services.UsageLedgerConfig{
		Store:  usageStore,
		Limits: cfg.Quotas,
		Logger: logger,
	})
	indexer := services.NewIndexer(services.IndexerConfig{
		Source:   driveSource,
		Refs:     fileRefStore,
		States:   indexStateStore,
		PageSize: cfg.DrivePageSize,
		MaxFiles: cfg.IndexMaxFiles,
		MaxBytes: cfg.IndexMaxBytes,
		Logger:   logger,
	})
	ingestor := services.NewIngestor(services.IngestorConfig{
		Source:      driveSource,
		Refs:        fileRefStore,
		Artifacts:   artifactStore,
		Normalisers: normalisers.DefaultRegistry(),
		Chunker:     postprocessors.NewChunker(postprocessors.DefaultChunkConfig()),
		MaxFiles:    cfg.IngestMaxFiles,
		MaxBytes:    cfg.IngestMaxBytes,
		Logger:      logger,
	})
	embeddingPipeline := services.NewEmbeddingPipeline(services.EmbeddingPipelineConfig{
		Artifacts:  artifactStore,
		Embeddings: embeddingStore,
		Usage:      usageLedger,
		Services:   runtimeServices,
		MaxChunks:  cfg.EmbedMaxChunks,
		Logger:     logger,
	})
	pipelineRunner := services.NewPipelineRunner(services.PipelineRunnerConfig{
		Indexer:      indexer,
		Ingestor:     ingestor,
		Embedder:     embeddingPipeline,
		Lock:         distributedLock,
		TaskQueue:    taskQueue,
		MaxStageRuns: cfg.MaxStageRuns,
		Logger:       logger,
	})
	searchService := services.NewSearchService(embeddingStore, usageLedger, runtimeServices, logger)
	chatService := services.NewChatService(services.ChatServiceConfig{
		Store:      chatStore,
		Embeddings: embeddingStore,
		Retriever:  searchService,
		Answers:    services.NewAnswerGenerator(runtimeServices, logger),
		Usage:      usageLedger,
		Logger:     logger,
	})

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Mode == "worker" || cfg.Mode == "all" {
		var scheduler *services.Scheduler
		if cfg.SchedulerEnabled {
			scheduler = services.NewScheduler(services.SchedulerConfig{
				Credentials:      credentialStore,
				TaskQueue:        taskQueue,
				Lock:             distributedLock,
				Logger:           logger,
				PipelineSchedule: cfg.PipelineSchedule,
				PruneSchedule:    cfg.PruneSchedule,
			})
			log.Printf("Scheduler enabled (pipeline=%q, prune=%q)", cfg.PipelineSchedule, cfg.PruneSchedule)
		} else {
			log.Println("Scheduler disabled via SCHEDULER_ENABLED=false")
		}

		workerCfg := worker.WorkerConfig{
			TaskQueue:      taskQueue,
			Runner:         pipelineRunner,
			Embedding:      embeddingPipeline,
			Logger:         logger,
			Concurrency:    cfg.WorkerConcurrency,
			DequeueTimeout: cfg.WorkerDequeueTimeout,
		}
		if scheduler != nil {
			workerCfg.Scheduler = scheduler
		}
		w := worker.NewWorker(workerCfg)

		g.Go(func() error {
			if err := w.Start(ctx); err != nil {
				return err
			}
			log.Println("Worker started, processing tasks...")
			<-ctx.Done()
			log.Println("Stopping worker...")
			w.Stop()
			return nil
		})
	}

	if cfg.Mode == "api" || cfg.Mode == "all" {
		serverCfg := http.DefaultConfig()
		serverCfg.Port = cfg.Port
		serverCfg.Version = version
		serverCfg.Features = cfg.Features
		serverCfg.AllowedOrigins = cfg.AllowedOrigins
		serverCfg.Logger = logger

		server := http.NewServer(
			serverCfg,
			http.Services{
				Indexer:   indexer,
				Ingestion: ingestor,
				Embedding: embeddingPipeline,
				Pipeline:  pipelineRunner,
				Search:    searchService,
				Files:     services.NewFileService(fileRefStore, credentialStore),
				Usage:     usageLedger,
				Chat:      chatService,
			},
			auth.NewAdapterWithIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTLeeway),
			db,
			redisPinger,
		)

		g.Go(func() error {
			return server.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Println("Shutdown complete")
}
