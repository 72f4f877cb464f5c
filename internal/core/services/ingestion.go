package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driving"
)

// Ensure Ingestor implements IngestionService
var _ driving.IngestionService = (*Ingestor)(nil)

// Default ingestion caps
const (
	DefaultIngestMaxFiles = 10
	DefaultIngestMaxBytes = 5 * 1024 * 1024
)

// ingestOutcome is the result of ingesting one file
type ingestOutcome int

const (
	outcomeIngested ingestOutcome = iota
	outcomeSkipped
)

// Ingestor runs the ingestion stage: fetch text, normalise, chunk and
// commit content-addressed artifacts for pending files.
type Ingestor struct {
	source      driven.FileSource
	refs        driven.FileRefStore
	artifacts   driven.ArtifactStore
	normalisers driven.NormaliserRegistry
	chunker     driven.Chunker
	maxFiles    int
	maxBytes    int64
	now         func() time.Time
	logger      *slog.Logger
}

// IngestorConfig holds dependencies for Ingestor.
type IngestorConfig struct {
	Source      driven.FileSource
	Refs        driven.FileRefStore
	Artifacts   driven.ArtifactStore
	Normalisers driven.NormaliserRegistry // Optional
	Chunker     driven.Chunker
	MaxFiles    int   // Files attempted per run (default: 10)
	MaxBytes    int64 // Bytes downloaded per run (default: 5MB)
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewIngestor creates a new ingestion stage.
func NewIngestor(cfg IngestorConfig) *Ingestor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultIngestMaxFiles
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultIngestMaxBytes
	}

	return &Ingestor{
		source:      cfg.Source,
		refs:        cfg.Refs,
		artifacts:   cfg.Artifacts,
		normalisers: cfg.Normalisers,
		chunker:     cfg.Chunker,
		maxFiles:    maxFiles,
		maxBytes:    maxBytes,
		now:         now,
		logger:      logger,
	}
}

// Run ingests pending files, oldest update first, within the file and byte
// caps. A failure on one file is recorded on its ref and the run continues.
func (in *Ingestor) Run(ctx context.Context, ownerID string) (*domain.IngestResult, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}

	candidates, err := in.refs.ListIngestCandidates(ctx, ownerID, in.maxFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingest candidates: %w", err)
	}

	result := &domain.IngestResult{}
	for _, ref := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if ref.SizeBytes != nil {
			size := *ref.SizeBytes
			if size > in.maxBytes {
				reason := fmt.Sprintf("File too large to ingest (%d bytes, limit %d)", size, in.maxBytes)
				if err := in.refs.MarkContentSkipped(ctx, ownerID, ref.ID, reason, ref.CurrentContentVersion()); err != nil {
					return nil, fmt.Errorf("failed to mark file skipped: %w", err)
				}
				result.Processed++
				result.Skipped++
				continue
			}
			if result.BytesProcessed+size > in.maxBytes {
				break
			}
		} else if result.BytesProcessed >= in.maxBytes {
			break
		}

		result.Processed++
		outcome, n, err := in.ingestFile(ctx, ref)
		switch {
		case err == nil && outcome == outcomeIngested:
			result.Ingested++
			result.BytesProcessed += n
		case err == nil:
			result.Skipped++
		case errors.Is(err, domain.ErrDriveNotConnected), ctx.Err() != nil:
			return nil, err
		default:
			result.Errored++
			in.logger.Warn("file ingestion failed",
				"owner_id", ownerID,
				"file_ref_id", ref.ID,
				"drive_file_id", ref.DriveFileID,
				"error", err,
			)
			if markErr := in.refs.MarkContentError(ctx, ownerID, ref.ID, err.Error()); markErr != nil {
				in.logger.Error("failed to record ingestion error",
					"file_ref_id", ref.ID,
					"error", markErr,
				)
			}
		}
	}

	pending, err := in.refs.CountIngestCandidates(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count ingest candidates: %w", err)
	}
	result.Done = pending == 0

	in.logger.Info("ingestion run completed",
		"owner_id", ownerID,
		"processed", result.Processed,
		"ingested", result.Ingested,
		"skipped", result.Skipped,
		"errored", result.Errored,
		"bytes", result.BytesProcessed,
		"done", result.Done,
	)

	return result, nil
}

// ingestFile fetches, normalises, chunks and commits one file.
// Returns the number of downloaded bytes for ingested files.
func (in *Ingestor) ingestFile(ctx context.Context, ref *domain.FileRef) (ingestOutcome, int64, error) {
	version := ref.CurrentContentVersion()

	text, err := in.source.FetchText(ctx, ref.OwnerID, ref.DriveFileID, ref.MimeType)
	if err != nil {
		return 0, 0, err
	}
	if text.Status == domain.TextStatusSkipped {
		if err := in.refs.MarkContentSkipped(ctx, ref.OwnerID, ref.ID, text.Reason, version); err != nil {
			return 0, 0, fmt.Errorf("failed to mark file skipped: %w", err)
		}
		return outcomeSkipped, 0, nil
	}

	raw := text.Text
	if in.normalisers != nil {
		if n := in.normalisers.Get(ref.MimeType); n != nil {
			raw = n.Normalise(raw, ref.MimeType)
		}
	}

	chunks := in.chunker.Chunk(raw)
	record, err := in.buildRecord(ref, raw, chunks, version)
	if err != nil {
		return 0, 0, err
	}
	if err := in.artifacts.CommitIngestion(ctx, record); err != nil {
		return 0, 0, fmt.Errorf("failed to commit ingestion: %w", err)
	}

	in.logger.Debug("file ingested",
		"file_ref_id", ref.ID,
		"chunks", len(chunks),
		"bytes", text.Bytes,
	)
	return outcomeIngested, text.Bytes, nil
}

func (in *Ingestor) buildRecord(ref *domain.FileRef, raw string, chunks []domain.Chunk, version string) (*domain.IngestRecord, error) {
	now := in.now()
	source := domain.NewSourceMetadata(ref)

	chunkJSON, chunkHash, err := domain.HashJSON(domain.ChunkPayload{
		Chunks: chunks,
		Source: source,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chunks: %w", err)
	}

	meta := domain.MetadataPayload{
		Source:    source,
		SizeBytes: ref.SizeBytes,
	}
	if ref.Checksum != "" {
		checksum := ref.Checksum
		meta.Checksum = &checksum
	}
	if version != "" {
		meta.ContentVersion = &version
	}
	metaJSON, metaHash, err := domain.HashJSON(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	artifact := func(typ domain.ArtifactType, hash string) *domain.Artifact {
		return &domain.Artifact{
			OwnerID:     ref.OwnerID,
			FileRefID:   ref.ID,
			Type:        typ,
			ContentHash: hash,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	rawText := artifact(domain.ArtifactRawText, domain.HashString(raw))
	rawText.ContentText = raw
	chunkArtifact := artifact(domain.ArtifactChunksJSON, chunkHash)
	chunkArtifact.ContentJSON = chunkJSON
	metadata := artifact(domain.ArtifactMetadataJSON, metaHash)
	metadata.ContentJSON = metaJSON

	return &domain.IngestRecord{
		FileRef:        ref,
		RawText:        rawText,
		Chunks:         chunkArtifact,
		Metadata:       metadata,
		ContentVersion: version,
		IngestedAt:     now,
	}, nil
}

// Requeue returns a file of a supported type to PENDING so the next run
// ingests it again.
func (in *Ingestor) Requeue(ctx context.Context, ownerID, fileRefID string) (*domain.FileRef, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	if fileRefID == "" {
		return nil, fmt.Errorf("%w: file id is required", domain.ErrInvalidInput)
	}
	ref, err := in.refs.Requeue(ctx, ownerID, fileRefID)
	if err != nil {
		return nil, err
	}
	in.logger.Info("file requeued", "owner_id", ownerID, "file_ref_id", fileRefID)
	return ref, nil
}
