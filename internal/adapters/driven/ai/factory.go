package ai

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// ProviderOpenAI is the only supported provider. OpenAI-compatible
// servers are reached by overriding the base URL.
const ProviderOpenAI = "openai"

// FactoryConfig holds the AI settings read at startup
type FactoryConfig struct {
	Provider string // default: openai
	APIKey   string
	BaseURL  string

	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingBatchSize  int
	EmbeddingRPS        float64

	ChatModel string

	// QueryCacheSize and QueryCacheTTL enable the query embedding cache
	QueryCacheSize int
	QueryCacheTTL  time.Duration

	Logger *slog.Logger
}

// Factory creates AI services based on configuration
type Factory struct {
	cfg FactoryConfig
}

// NewFactory creates a new AI service factory
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Factory{cfg: cfg}
}

// CreateEmbeddingService returns nil, nil when no API key is configured
func (f *Factory) CreateEmbeddingService() (driven.EmbeddingService, error) {
	if f.cfg.APIKey == "" {
		return nil, nil
	}
	if err := f.checkProvider(); err != nil {
		return nil, err
	}

	svc, err := NewOpenAIEmbedding(OpenAIEmbeddingConfig{
		APIKey:            f.cfg.APIKey,
		Model:             f.cfg.EmbeddingModel,
		BaseURL:           f.cfg.BaseURL,
		Dimensions:        f.cfg.EmbeddingDimensions,
		BatchSize:         f.cfg.EmbeddingBatchSize,
		RequestsPerSecond: f.cfg.EmbeddingRPS,
		Logger:            f.cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return WrapQueryCache(svc, f.cfg.QueryCacheSize, f.cfg.QueryCacheTTL, f.cfg.Logger), nil
}

// CreateLLMService returns nil, nil when no API key is configured
func (f *Factory) CreateLLMService() (driven.LLMService, error) {
	if f.cfg.APIKey == "" {
		return nil, nil
	}
	if err := f.checkProvider(); err != nil {
		return nil, err
	}

	return NewOpenAIChat(OpenAIChatConfig{
		APIKey:  f.cfg.APIKey,
		Model:   f.cfg.ChatModel,
		BaseURL: f.cfg.BaseURL,
		Logger:  f.cfg.Logger,
	})
}

func (f *Factory) checkProvider() error {
	if f.cfg.Provider != ProviderOpenAI {
		return fmt.Errorf("%w: unsupported AI provider %q", domain.ErrInvalidInput, f.cfg.Provider)
	}
	return nil
}
