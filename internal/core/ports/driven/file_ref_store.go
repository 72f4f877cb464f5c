package driven

import (
	"context"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// FileRefStore handles remote file reference persistence (PostgreSQL)
type FileRefStore interface {
	// UpsertListed records one batch of listed files in a single transaction.
	// Returns how many rows were created or had their content version changed.
	UpsertListed(ctx context.Context, ownerID string, files []*domain.RemoteFile) (int, error)

	// Get retrieves a file ref owned by ownerID
	Get(ctx context.Context, ownerID, id string) (*domain.FileRef, error)

	// ListIngestCandidates returns NEW or INDEXED refs with PENDING content,
	// oldest update first
	ListIngestCandidates(ctx context.Context, ownerID string, limit int) ([]*domain.FileRef, error)

	// CountIngestCandidates counts refs ListIngestCandidates would return without a limit
	CountIngestCandidates(ctx context.Context, ownerID string) (int, error)

	// MarkContentSkipped records a skipped fetch
	MarkContentSkipped(ctx context.Context, ownerID, id, reason, contentVersion string) error

	// MarkContentError records a failed ingestion
	MarkContentError(ctx context.Context, ownerID, id, message string) error

	// Requeue returns a ref of a supported type to PENDING content status
	Requeue(ctx context.Context, ownerID, id string) (*domain.FileRef, error)

	// List pages through refs with aggregate status counts
	List(ctx context.Context, ownerID string, opts domain.FileListOptions) (*domain.FileListResult, error)

	// StatusCounts returns ref counts per indexing status
	StatusCounts(ctx context.Context, ownerID string) (map[domain.FileStatus]int, error)
}

// IndexStateStore handles listing cursor persistence (PostgreSQL)
type IndexStateStore interface {
	// Get retrieves the owner's index state or domain.ErrNotFound
	Get(ctx context.Context, ownerID string) (*domain.IndexState, error)

	// Save creates or updates the owner's index state
	Save(ctx context.Context, state *domain.IndexState) error
}
