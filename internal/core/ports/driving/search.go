package driving

import (
	"context"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// SearchService ranks an owner's chunks against a free-text query
type SearchService interface {
	// Search returns the top limit chunks by cosine similarity.
	// Consumes one unit of the searches quota.
	Search(ctx context.Context, ownerID, query string, limit int) ([]*domain.SearchHit, error)
}

// FileService exposes an owner's indexed files
type FileService interface {
	// List pages through file refs with status counts
	List(ctx context.Context, ownerID string, opts domain.FileListOptions) (*domain.FileListResult, error)

	// DriveStatus reports whether Drive is connected and indexing counts
	DriveStatus(ctx context.Context, ownerID string) (*domain.DriveStatus, error)
}

// UsageService reports quota consumption
type UsageService interface {
	// Snapshot returns today's usage, limits and remaining headroom
	Snapshot(ctx context.Context, ownerID string) (*domain.QuotaSnapshot, error)
}
