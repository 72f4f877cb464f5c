package driving

import (
	"context"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// IndexService runs the listing stage
type IndexService interface {
	// Run consumes at most one listing page for the owner and advances the cursor
	Run(ctx context.Context, ownerID string) (*domain.IndexResult, error)
}

// IngestionService runs the ingestion stage
type IngestionService interface {
	// Run ingests pending files for the owner within the per-run caps
	Run(ctx context.Context, ownerID string) (*domain.IngestResult, error)

	// Requeue returns a file to PENDING so the next run ingests it again
	Requeue(ctx context.Context, ownerID, fileRefID string) (*domain.FileRef, error)
}

// EmbeddingPipeline runs the embedding stage
type EmbeddingPipeline interface {
	// Run embeds chunks of current artifacts missing a vector
	Run(ctx context.Context, ownerID string, opts domain.EmbedOptions) (*domain.EmbedResult, error)

	// PruneSuperseded deletes embeddings of artifacts that are no longer current
	PruneSuperseded(ctx context.Context, ownerID string) (*domain.PruneResult, error)
}

// PipelineRunner runs all stages for one owner
type PipelineRunner interface {
	// RunOwner runs index, ingest and embed until each is done or capped.
	// Returns domain.ErrRunInProgress when another run holds the owner lock.
	RunOwner(ctx context.Context, ownerID string) (*domain.PipelineResult, error)

	// Enqueue schedules a background run for the owner. Returns
	// domain.ErrRunInProgress when a run is already pending.
	Enqueue(ctx context.Context, ownerID string) (*domain.Task, error)
}

// Scheduler enqueues background runs on a schedule
type Scheduler interface {
	// Start begins scheduling
	Start(ctx context.Context) error

	// Stop stops scheduling and waits for an in-flight tick
	Stop()
}
