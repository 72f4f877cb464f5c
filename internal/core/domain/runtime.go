package domain

import "sync"

// RuntimeConfig tracks which services are available at runtime.
// Thread-safe for concurrent access.
type RuntimeConfig struct {
	mu sync.RWMutex

	// Static (set at startup, read-only)
	StateBackend string // "redis" or "postgres", backs locks and usage counters

	// Dynamic capability flags
	embeddingAvailable bool
	chatAvailable      bool
}

// NewRuntimeConfig creates a new RuntimeConfig with initial values
func NewRuntimeConfig(stateBackend string) *RuntimeConfig {
	return &RuntimeConfig{
		StateBackend: stateBackend,
	}
}

// EmbeddingAvailable returns whether embedding service is available
func (c *RuntimeConfig) EmbeddingAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.embeddingAvailable
}

// ChatAvailable returns whether the chat-completion service is available
func (c *RuntimeConfig) ChatAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chatAvailable
}

// SetEmbeddingAvailable updates the embedding availability flag
func (c *RuntimeConfig) SetEmbeddingAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embeddingAvailable = available
}

// SetChatAvailable updates the chat availability flag
func (c *RuntimeConfig) SetChatAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatAvailable = available
}

// CanSearch returns true if semantic search is possible
func (c *RuntimeConfig) CanSearch() bool {
	return c.EmbeddingAvailable()
}

// CanAnswer returns true if grounded chat is possible
func (c *RuntimeConfig) CanAnswer() bool {
	return c.EmbeddingAvailable() && c.ChatAvailable()
}
