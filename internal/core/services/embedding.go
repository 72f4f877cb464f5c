package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driving"
	"github.com/custodia-labs/timeline-core/internal/runtime"
)

// Ensure EmbeddingPipeline implements the driving port
var _ driving.EmbeddingPipeline = (*EmbeddingPipeline)(nil)

// Default embedding caps
const (
	DefaultEmbedMaxChunks = 200
	embedArtifactPageSize = 10
)

// EmbeddingPipeline embeds chunks of current CHUNKS_JSON artifacts that do
// not yet have a vector for their content hash.
type EmbeddingPipeline struct {
	artifacts  driven.ArtifactStore
	embeddings driven.EmbeddingStore
	usage      *UsageLedger
	services   *runtime.Services
	maxChunks  int
	now        func() time.Time
	logger     *slog.Logger
}

// EmbeddingPipelineConfig holds dependencies for EmbeddingPipeline.
type EmbeddingPipelineConfig struct {
	Artifacts  driven.ArtifactStore
	Embeddings driven.EmbeddingStore
	Usage      *UsageLedger
	Services   *runtime.Services
	MaxChunks  int // Default chunks per run (default: 200)
	Now        func() time.Time
	Logger     *slog.Logger
}

// NewEmbeddingPipeline creates a new embedding stage.
func NewEmbeddingPipeline(cfg EmbeddingPipelineConfig) *EmbeddingPipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	maxChunks := cfg.MaxChunks
	if maxChunks <= 0 {
		maxChunks = DefaultEmbedMaxChunks
	}

	return &EmbeddingPipeline{
		artifacts:  cfg.Artifacts,
		embeddings: cfg.Embeddings,
		usage:      cfg.Usage,
		services:   cfg.Services,
		maxChunks:  maxChunks,
		now:        now,
		logger:     logger,
	}
}

// Run embeds missing chunks, most recently ingested artifacts first.
// The run is capped by opts.MaxChunks and the remaining embed_chunks quota.
// A response whose vector count differs from the batch aborts the run
// without storing the batch.
func (p *EmbeddingPipeline) Run(ctx context.Context, ownerID string, opts domain.EmbedOptions) (*domain.EmbedResult, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	embedder, err := p.services.RequireEmbedding()
	if err != nil {
		return nil, err
	}

	maxChunks := opts.MaxChunks
	if maxChunks <= 0 {
		maxChunks = p.maxChunks
	}
	quota, err := p.usage.Remaining(ctx, ownerID, domain.UsageEmbedChunks)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}
	if quota <= 0 {
		return nil, domain.NewQuotaError(domain.UsageEmbedChunks, p.usage.Limits().EmbedChunks, 0)
	}
	if quota < int64(maxChunks) {
		maxChunks = int(quota)
	}

	result := &domain.EmbedResult{}
	reachedEnd := false

pages:
	for offset := 0; result.EmbeddedChunks < maxChunks; offset += embedArtifactPageSize {
		artifacts, err := p.artifacts.ListCurrentChunkArtifacts(ctx, ownerID, opts.FileRefID, offset, embedArtifactPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list chunk artifacts: %w", err)
		}
		if len(artifacts) == 0 {
			reachedEnd = true
			break
		}

		for _, artifact := range artifacts {
			if result.EmbeddedChunks >= maxChunks {
				break pages
			}
			result.ProcessedArtifacts++

			n, skipped, err := p.embedArtifact(ctx, embedder, artifact, maxChunks-result.EmbeddedChunks)
			result.SkippedChunks += skipped
			if err != nil {
				return nil, err
			}
			result.EmbeddedChunks += n
		}
	}

	result.Done = result.EmbeddedChunks < maxChunks && reachedEnd

	p.logger.Info("embedding run completed",
		"owner_id", ownerID,
		"processed_artifacts", result.ProcessedArtifacts,
		"embedded_chunks", result.EmbeddedChunks,
		"skipped_chunks", result.SkippedChunks,
		"done", result.Done,
	)

	return result, nil
}

// embedArtifact embeds up to capacity missing chunks of one artifact.
// Returns the embedded and already-embedded chunk counts.
func (p *EmbeddingPipeline) embedArtifact(ctx context.Context, embedder driven.EmbeddingService, artifact *domain.Artifact, capacity int) (int, int, error) {
	payload, err := domain.DecodeChunkPayload(artifact.ContentJSON)
	if err != nil {
		p.logger.Warn("skipping malformed chunk artifact",
			"artifact_id", artifact.ID,
			"file_ref_id", artifact.FileRefID,
			"error", err,
		)
		return 0, 0, nil
	}
	if len(payload.Chunks) == 0 {
		return 0, 0, nil
	}

	existing, err := p.embeddings.ExistingChunkIndexes(ctx, artifact.ID, artifact.ContentHash)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load existing embeddings: %w", err)
	}

	var missing []domain.Chunk
	for _, c := range payload.Chunks {
		if !existing[c.Index] {
			missing = append(missing, c)
		}
	}
	if len(missing) > capacity {
		missing = missing[:capacity]
	}
	if len(missing) == 0 {
		return 0, len(existing), nil
	}

	texts := make([]string, len(missing))
	for i, c := range missing {
		texts[i] = c.Text
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return 0, len(existing), fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(missing) {
		return 0, len(existing), fmt.Errorf("%w: requested %d, received %d",
			domain.ErrEmbeddingMismatch, len(missing), len(vectors))
	}

	now := p.now()
	rows := make([]*domain.ChunkEmbedding, len(missing))
	for i, c := range missing {
		if len(vectors[i]) == 0 {
			return 0, len(existing), fmt.Errorf("%w: empty vector for chunk %d",
				domain.ErrEmbeddingMismatch, c.Index)
		}
		rows[i] = &domain.ChunkEmbedding{
			ID:          domain.GenerateID(),
			OwnerID:     artifact.OwnerID,
			FileRefID:   artifact.FileRefID,
			ArtifactID:  artifact.ID,
			ChunkIndex:  c.Index,
			ChunkText:   c.Text,
			ContentHash: artifact.ContentHash,
			Embedding:   vectors[i],
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	if err := p.embeddings.InsertBatch(ctx, rows); err != nil {
		return 0, len(existing), fmt.Errorf("failed to store embeddings: %w", err)
	}
	if err := p.usage.Record(ctx, artifact.OwnerID, domain.UsageEmbedChunks, int64(len(rows))); err != nil {
		return len(rows), len(existing), fmt.Errorf("failed to record usage: %w", err)
	}

	return len(rows), len(existing), nil
}

// PruneSuperseded deletes embeddings whose artifact is no longer the current
// artifact of its file.
func (p *EmbeddingPipeline) PruneSuperseded(ctx context.Context, ownerID string) (*domain.PruneResult, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	deleted, err := p.embeddings.DeleteSuperseded(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to prune embeddings: %w", err)
	}
	p.logger.Info("superseded embeddings pruned", "owner_id", ownerID, "deleted", deleted)
	return &domain.PruneResult{Deleted: deleted}, nil
}
