package ai

import (
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

func TestFactory_NotConfigured(t *testing.T) {
	factory := NewFactory(FactoryConfig{})

	embedder, err := factory.CreateEmbeddingService()
	if err != nil || embedder != nil {
		t.Errorf("expected nil embedding service without a key, got %v %v", embedder, err)
	}
	llm, err := factory.CreateLLMService()
	if err != nil || llm != nil {
		t.Errorf("expected nil LLM service without a key, got %v %v", llm, err)
	}
}

func TestFactory_OpenAI(t *testing.T) {
	factory := NewFactory(FactoryConfig{
		APIKey:              "sk-test",
		EmbeddingModel:      "text-embedding-3-large",
		EmbeddingDimensions: 256,
		ChatModel:           "gpt-4o",
	})

	embedder, err := factory.CreateEmbeddingService()
	if err != nil {
		t.Fatalf("CreateEmbeddingService: %v", err)
	}
	if _, ok := embedder.(*OpenAIEmbedding); !ok {
		t.Errorf("expected *OpenAIEmbedding without a cache, got %T", embedder)
	}
	if embedder.Model() != "text-embedding-3-large" || embedder.Dimensions() != 256 {
		t.Errorf("unexpected embedding settings %s/%d", embedder.Model(), embedder.Dimensions())
	}

	llm, err := factory.CreateLLMService()
	if err != nil {
		t.Fatalf("CreateLLMService: %v", err)
	}
	if llm.Model() != "gpt-4o" {
		t.Errorf("expected gpt-4o, got %s", llm.Model())
	}
}

func TestFactory_QueryCache(t *testing.T) {
	factory := NewFactory(FactoryConfig{
		APIKey:         "sk-test",
		QueryCacheSize: 64,
		QueryCacheTTL:  5 * time.Minute,
	})

	embedder, err := factory.CreateEmbeddingService()
	if err != nil {
		t.Fatalf("CreateEmbeddingService: %v", err)
	}
	if _, ok := embedder.(*CachedEmbedding); !ok {
		t.Errorf("expected *CachedEmbedding, got %T", embedder)
	}
}

func TestFactory_UnsupportedProvider(t *testing.T) {
	factory := NewFactory(FactoryConfig{Provider: "cohere", APIKey: "key"})

	if _, err := factory.CreateEmbeddingService(); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := factory.CreateLLMService(); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
