package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driving"
	"github.com/custodia-labs/timeline-core/internal/runtime"
)

// Ensure SearchService implements the driving port
var _ driving.SearchService = (*SearchService)(nil)

// SearchService ranks chunks by cosine similarity to a query
type SearchService struct {
	embeddings driven.EmbeddingStore
	usage      *UsageLedger
	services   *runtime.Services // Dynamic AI services
	logger     *slog.Logger
}

// NewSearchService creates a new SearchService.
// The embedding service is accessed dynamically via runtime.Services.
func NewSearchService(
	embeddings driven.EmbeddingStore,
	usage *UsageLedger,
	services *runtime.Services,
	logger *slog.Logger,
) *SearchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchService{
		embeddings: embeddings,
		usage:      usage,
		services:   services,
		logger:     logger,
	}
}

// Search ranks the owner's current chunks against query.
// One unit of the searches quota is consumed per successful call.
func (s *SearchService) Search(ctx context.Context, ownerID, query string, limit int) ([]*domain.SearchHit, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}
	if _, err := s.services.RequireEmbedding(); err != nil {
		return nil, err
	}
	if err := s.usage.AssertRemaining(ctx, ownerID, domain.UsageSearches, 1); err != nil {
		return nil, err
	}

	start := time.Now()
	hits, err := s.Retrieve(ctx, ownerID, query, domain.ClampSearchLimit(limit))
	if err != nil {
		return nil, err
	}
	if err := s.usage.Record(ctx, ownerID, domain.UsageSearches, 1); err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}

	s.logger.Debug("search completed",
		"owner_id", ownerID,
		"hits", len(hits),
		"took", time.Since(start),
	)
	return hits, nil
}

// Retrieve embeds query and returns the top limit chunks without touching
// the searches quota. Callers clamp limit.
func (s *SearchService) Retrieve(ctx context.Context, ownerID, query string, limit int) ([]*domain.SearchHit, error) {
	embedder, err := s.services.RequireEmbedding()
	if err != nil {
		return nil, err
	}
	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := s.embeddings.Search(ctx, ownerID, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	return hits, nil
}
