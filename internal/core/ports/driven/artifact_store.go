package driven

import (
	"context"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// ArtifactStore handles derived artifact persistence (PostgreSQL)
type ArtifactStore interface {
	// CommitIngestion upserts the three artifacts of record keyed by
	// (file ref, type, content hash) and marks the file ref INGESTED, all in
	// one transaction. Artifact IDs are filled in from the stored rows.
	CommitIngestion(ctx context.Context, record *domain.IngestRecord) error

	// ListCurrentChunkArtifacts pages through CHUNKS_JSON artifacts that are the
	// current artifact of their file ref, most recently ingested first.
	// fileRefID is optional.
	ListCurrentChunkArtifacts(ctx context.Context, ownerID, fileRefID string, offset, limit int) ([]*domain.Artifact, error)

	// CountByFileRef counts stored artifacts for a file ref
	CountByFileRef(ctx context.Context, fileRefID string) (int, error)
}

// EmbeddingStore handles chunk vector persistence (PostgreSQL + pgvector)
type EmbeddingStore interface {
	// ExistingChunkIndexes returns chunk indexes already embedded for
	// (artifactID, contentHash)
	ExistingChunkIndexes(ctx context.Context, artifactID, contentHash string) (map[int]bool, error)

	// InsertBatch inserts rows in one statement, ignoring conflicts on
	// (artifact_id, chunk_index, content_hash)
	InsertBatch(ctx context.Context, rows []*domain.ChunkEmbedding) error

	// Search ranks the owner's current embeddings by cosine similarity
	Search(ctx context.Context, ownerID string, query []float32, limit int) ([]*domain.SearchHit, error)

	// CountByOwner counts the owner's stored embeddings
	CountByOwner(ctx context.Context, ownerID string) (int64, error)

	// DeleteSuperseded removes embeddings whose artifact is no longer current
	DeleteSuperseded(ctx context.Context, ownerID string) (int64, error)
}
