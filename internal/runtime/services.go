package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Services holds the AI providers shared by search, embedding and chat.
// Either provider may be absent when no API key is configured, in which
// case the Require methods fail with domain.ErrFeatureDisabled.
type Services struct {
	mu     sync.RWMutex
	config *domain.RuntimeConfig

	embedding driven.EmbeddingService
	llm       driven.LLMService
}

func NewServices(config *domain.RuntimeConfig) *Services {
	return &Services{config: config}
}

// Config returns the capability flags kept in step with the providers
func (s *Services) Config() *domain.RuntimeConfig {
	return s.config
}

// EmbeddingService returns the current embedding provider or nil
func (s *Services) EmbeddingService() driven.EmbeddingService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embedding
}

// LLMService returns the current chat-completion provider or nil
func (s *Services) LLMService() driven.LLMService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.llm
}

func (s *Services) RequireEmbedding() (driven.EmbeddingService, error) {
	if svc := s.EmbeddingService(); svc != nil {
		return svc, nil
	}
	return nil, fmt.Errorf("%w: embeddings are not configured", domain.ErrFeatureDisabled)
}

func (s *Services) RequireLLM() (driven.LLMService, error) {
	if svc := s.LLMService(); svc != nil {
		return svc, nil
	}
	return nil, fmt.Errorf("%w: chat is not configured", domain.ErrFeatureDisabled)
}

// SetEmbeddingService installs svc and closes the provider it replaces.
// A nil svc disables embeddings.
func (s *Services) SetEmbeddingService(svc driven.EmbeddingService) {
	s.mu.Lock()
	old := s.embedding
	s.embedding = svc
	s.config.SetEmbeddingAvailable(svc != nil)
	s.mu.Unlock()

	_ = closeProvider(old)
}

// SetLLMService installs svc and closes the provider it replaces.
// A nil svc disables chat.
func (s *Services) SetLLMService(svc driven.LLMService) {
	s.mu.Lock()
	old := s.llm
	s.llm = svc
	s.config.SetChatAvailable(svc != nil)
	s.mu.Unlock()

	_ = closeProvider(old)
}

// ValidateAndSetEmbedding installs svc only after a successful health check.
// A failing svc is closed and the current provider is kept.
func (s *Services) ValidateAndSetEmbedding(ctx context.Context, svc driven.EmbeddingService) error {
	if svc != nil {
		if err := svc.HealthCheck(ctx); err != nil {
			_ = svc.Close()
			return fmt.Errorf("embedding health check failed: %w", err)
		}
	}
	s.SetEmbeddingService(svc)
	return nil
}

// ValidateAndSetLLM installs svc only after a successful ping.
func (s *Services) ValidateAndSetLLM(ctx context.Context, svc driven.LLMService) error {
	if svc != nil {
		if err := svc.Ping(ctx); err != nil {
			_ = svc.Close()
			return fmt.Errorf("chat ping failed: %w", err)
		}
	}
	s.SetLLMService(svc)
	return nil
}

// Close releases both providers and clears the capability flags.
func (s *Services) Close() error {
	s.mu.Lock()
	embedding, llm := s.embedding, s.llm
	s.embedding, s.llm = nil, nil
	s.config.SetEmbeddingAvailable(false)
	s.config.SetChatAvailable(false)
	s.mu.Unlock()

	return errors.Join(closeProvider(embedding), closeProvider(llm))
}

// closeProvider closes a provider that may be a nil interface
func closeProvider(c io.Closer) error {
	if c == nil {
		return nil
	}
	return c.Close()
}
