package driven

import (
	"context"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// ChatStore handles chat thread and message persistence (PostgreSQL)
type ChatStore interface {
	// CreateThread stores a new thread
	CreateThread(ctx context.Context, thread *domain.ChatThread) error

	// GetThread retrieves a thread owned by ownerID, without messages
	GetThread(ctx context.Context, ownerID, id string) (*domain.ChatThread, error)

	// ListThreads returns the owner's threads, most recently updated first
	ListThreads(ctx context.Context, ownerID string, limit int) ([]*domain.ChatThread, error)

	// SetTitle updates a thread title
	SetTitle(ctx context.Context, threadID, title string) error

	// AddMessage stores a message and touches its thread
	AddMessage(ctx context.Context, msg *domain.ChatMessage) error

	// ListMessages returns the newest opts.Limit messages created before
	// opts.Before (when set), oldest first
	ListMessages(ctx context.Context, threadID string, opts domain.MessageListOptions) ([]*domain.ChatMessage, error)

	// RecentMessages returns up to limit messages of a thread, newest first,
	// excluding the message with excludeID
	RecentMessages(ctx context.Context, threadID, excludeID string, limit int) ([]*domain.ChatMessage, error)

	// CountMessages counts a thread's messages with role
	CountMessages(ctx context.Context, threadID string, role domain.MessageRole) (int, error)
}
