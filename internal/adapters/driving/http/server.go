package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the driving ports served over HTTP. Any may be nil when
// the matching feature is off.
type Services struct {
	Indexer   driving.IndexService
	Ingestion driving.IngestionService
	Embedding driving.EmbeddingPipeline
	Pipeline  driving.PipelineRunner
	Search    driving.SearchService
	Files     driving.FileService
	Usage     driving.UsageService
	Chat      driving.ChatService
}

// Features toggles route groups. A disabled group answers 503.
type Features struct {
	DriveIndexing bool
	Embeddings    bool
	Chat          bool
}

// Feature names reported in feature_disabled errors
const (
	FeatureDriveIndexing = "drive_indexing"
	FeatureEmbeddings    = "embeddings"
	FeatureChat          = "chat"
)

func (f Features) enabled(name string) bool {
	switch name {
	case FeatureDriveIndexing:
		return f.DriveIndexing
	case FeatureEmbeddings:
		return f.Embeddings
	case FeatureChat:
		return f.Chat
	default:
		return false
	}
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	features   Features
	logger     *slog.Logger

	services Services
	auth     driven.AuthAdapter

	// Infrastructure
	db          Pinger // PostgreSQL health check
	redisClient Pinger // Redis health check (optional)
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	Features       Features
	AllowedOrigins []string
	Logger         *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:     "0.0.0.0",
		Port:     8080,
		Version:  "dev",
		Features: Features{DriveIndexing: true, Embeddings: true, Chat: true},
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	services Services,
	auth driven.AuthAdapter,
	db Pinger,
	redisClient Pinger, // can be nil
) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		router:      http.NewServeMux(),
		version:     cfg.Version,
		features:    cfg.Features,
		logger:      cfg.Logger,
		services:    services,
		auth:        auth,
		db:          db,
		redisClient: redisClient,
	}
	s.setupRoutes()

	var handler http.Handler = s.router
	if len(cfg.AllowedOrigins) > 0 {
		handler = NewCORSMiddleware(cfg.AllowedOrigins).Handler(handler)
	}
	handler = NewLoggingMiddleware(cfg.Logger).Handler(handler)
	handler = NewRecoveryMiddleware(cfg.Logger).Handler(handler)
	handler = RequestID(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // chat replies wait on the LLM
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.auth)
	protected := func(feature string, h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(s.requireFeature(feature, h))
	}

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Pipeline stages
	s.router.Handle("POST /api/v1/index/run", protected(FeatureDriveIndexing, s.handleIndexRun))
	s.router.Handle("POST /api/v1/ingest/run", protected(FeatureDriveIndexing, s.handleIngestRun))
	s.router.Handle("POST /api/v1/embed/run", protected(FeatureEmbeddings, s.handleEmbedRun))
	s.router.Handle("POST /api/v1/embed/prune", protected(FeatureEmbeddings, s.handleEmbedPrune))
	s.router.Handle("POST /api/v1/pipeline/enqueue", protected(FeatureDriveIndexing, s.handlePipelineEnqueue))

	// Search
	s.router.Handle("POST /api/v1/search", protected(FeatureEmbeddings, s.handleSearch))

	// Files and Drive
	s.router.Handle("GET /api/v1/files", protected("", s.handleListFiles))
	s.router.Handle("POST /api/v1/files/{id}/requeue", protected(FeatureDriveIndexing, s.handleRequeueFile))
	s.router.Handle("GET /api/v1/drive/status", protected("", s.handleDriveStatus))

	// Usage
	s.router.Handle("GET /api/v1/usage", protected("", s.handleUsage))

	// Chat
	s.router.Handle("POST /api/v1/chat/threads", protected(FeatureChat, s.handleCreateThread))
	s.router.Handle("GET /api/v1/chat/threads", protected(FeatureChat, s.handleListThreads))
	s.router.Handle("GET /api/v1/chat/threads/{id}", protected(FeatureChat, s.handleGetThread))
	s.router.Handle("POST /api/v1/chat/threads/{id}/messages", protected(FeatureChat, s.handlePostMessage))
}

// requireFeature answers feature_disabled when feature is off.
// An empty feature is always on.
func (s *Server) requireFeature(feature string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if feature != "" && !s.features.enabled(feature) {
			writeFeatureDisabled(w, r, feature)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
