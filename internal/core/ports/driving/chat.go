package driving

import (
	"context"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// AnswerGenerator composes a grounded LLM answer
type AnswerGenerator interface {
	// Answer builds a bounded prompt from context chunks and history and
	// returns the reply with citations. The reply is never empty.
	Answer(ctx context.Context, query string, chunks []domain.ContextChunk, history []domain.ConversationMessage) (*domain.Answer, error)
}

// ChatService manages chat threads
type ChatService interface {
	// CreateThread starts an untitled thread
	CreateThread(ctx context.Context, ownerID string) (*domain.ChatThread, error)

	// ListThreads returns the owner's threads, most recent first
	ListThreads(ctx context.Context, ownerID string) ([]*domain.ChatThread, error)

	// GetThread returns a thread with a page of its messages, oldest first
	GetThread(ctx context.Context, ownerID, threadID string, opts domain.MessageListOptions) (*domain.ChatThread, error)

	// PostMessage stores a user message and the assistant reply.
	// limit is the retrieval limit (0 uses the default).
	PostMessage(ctx context.Context, ownerID, threadID, content string, limit int) (*domain.Answer, error)
}
