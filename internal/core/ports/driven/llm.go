package driven

import (
	"context"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// LLMService sends chat-completion requests to a language model
type LLMService interface {
	// Complete returns the top choice for messages
	Complete(ctx context.Context, messages []domain.LLMMessage, opts domain.CompletionOptions) (*domain.Completion, error)

	// Model returns the model name being used
	Model() string

	// Ping verifies the LLM service is available
	Ping(ctx context.Context) error

	// Close releases resources held by the LLM service
	Close() error
}
