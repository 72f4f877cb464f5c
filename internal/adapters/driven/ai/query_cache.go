package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Ensure CachedEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*CachedEmbedding)(nil)

// CachedEmbedding remembers query vectors so repeated searches skip the
// embeddings API. Batch embedding of chunks is never cached.
type CachedEmbedding struct {
	driven.EmbeddingService
	cache  *expirable.LRU[string, []float32]
	logger *slog.Logger
}

// WrapQueryCache returns next unchanged when size or ttl is not positive
func WrapQueryCache(next driven.EmbeddingService, size int, ttl time.Duration, logger *slog.Logger) driven.EmbeddingService {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedding{
		EmbeddingService: next,
		cache:            expirable.NewLRU[string, []float32](size, nil, ttl),
		logger:           logger,
	}
}

// EmbedQuery serves from the cache, keyed by model and query text
func (c *CachedEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	key := c.Model() + "\x00" + query
	if cached, ok := c.cache.Get(key); ok {
		c.logger.Debug("query embedding cache hit", "model", c.Model())
		return cloneEmbedding(cached), nil
	}

	vector, err := c.EmbeddingService.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cloneEmbedding(vector))
	return vector, nil
}

// Len reports the number of cached queries
func (c *CachedEmbedding) Len() int {
	return c.cache.Len()
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
