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

// Ensure PipelineRunner implements the driving port
var _ driving.PipelineRunner = (*PipelineRunner)(nil)

// DefaultMaxStageRuns bounds how often one background run repeats a stage
const DefaultMaxStageRuns = 10

// PipelineRunner runs index, ingest and embed for one owner under a
// per-owner lock. Each stage repeats until it reports done or the stage
// run cap is hit; the next scheduled run resumes from stored state.
type PipelineRunner struct {
	indexer      driving.IndexService
	ingestor     driving.IngestionService
	embedder     driving.EmbeddingPipeline
	lock         driven.DistributedLock
	taskQueue    driven.TaskQueue
	maxStageRuns int
	lockTTL      time.Duration
	logger       *slog.Logger
}

// PipelineRunnerConfig holds dependencies for PipelineRunner.
type PipelineRunnerConfig struct {
	Indexer      driving.IndexService
	Ingestor     driving.IngestionService
	Embedder     driving.EmbeddingPipeline
	Lock         driven.DistributedLock // Optional: serialises runs per owner
	TaskQueue    driven.TaskQueue       // Required for Enqueue
	MaxStageRuns int                    // Runs per stage (default: 10)
	LockTTL      time.Duration          // Owner lock TTL (default: 15m)
	Logger       *slog.Logger
}

// NewPipelineRunner creates a new pipeline runner.
func NewPipelineRunner(cfg PipelineRunnerConfig) *PipelineRunner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxStageRuns := cfg.MaxStageRuns
	if maxStageRuns <= 0 {
		maxStageRuns = DefaultMaxStageRuns
	}
	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 15 * time.Minute
	}
	return &PipelineRunner{
		indexer:      cfg.Indexer,
		ingestor:     cfg.Ingestor,
		embedder:     cfg.Embedder,
		lock:         cfg.Lock,
		taskQueue:    cfg.TaskQueue,
		maxStageRuns: maxStageRuns,
		lockTTL:      lockTTL,
		logger:       logger,
	}
}

func pipelineLockName(ownerID string) string {
	return "pipeline:" + ownerID
}

// RunOwner runs all stages for the owner.
// Embedding is skipped when it is not configured and stops quietly when
// the daily embed quota is used up.
func (r *PipelineRunner) RunOwner(ctx context.Context, ownerID string) (*domain.PipelineResult, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}

	if r.lock != nil {
		name := pipelineLockName(ownerID)
		acquired, err := r.lock.Acquire(ctx, name, r.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire pipeline lock: %w", err)
		}
		if !acquired {
			return nil, domain.ErrRunInProgress
		}
		defer func() {
			if err := r.lock.Release(context.WithoutCancel(ctx), name); err != nil {
				r.logger.Warn("failed to release pipeline lock", "owner_id", ownerID, "error", err)
			}
		}()
	}

	start := time.Now()
	result := &domain.PipelineResult{OwnerID: ownerID}
	logger := r.logger.With("owner_id", ownerID)

	for i := 0; i < r.maxStageRuns; i++ {
		res, err := r.indexer.Run(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("index stage: %w", err)
		}
		result.Index.Processed += res.Processed
		result.Index.NewOrUpdated += res.NewOrUpdated
		result.Index.Cursor = res.Cursor
		result.Index.Done = res.Done
		if res.Done {
			break
		}
	}
	r.extendLock(ctx, ownerID)

	for i := 0; i < r.maxStageRuns; i++ {
		res, err := r.ingestor.Run(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("ingest stage: %w", err)
		}
		result.Ingest.Processed += res.Processed
		result.Ingest.Ingested += res.Ingested
		result.Ingest.Skipped += res.Skipped
		result.Ingest.Errored += res.Errored
		result.Ingest.BytesProcessed += res.BytesProcessed
		result.Ingest.Done = res.Done
		if res.Done || res.Processed == 0 {
			break
		}
	}
	r.extendLock(ctx, ownerID)

	for i := 0; i < r.maxStageRuns; i++ {
		res, err := r.embedder.Run(ctx, ownerID, domain.EmbedOptions{})
		if errors.Is(err, domain.ErrFeatureDisabled) {
			logger.Info("embedding stage skipped", "reason", err)
			break
		}
		if errors.Is(err, domain.ErrQuotaExceeded) {
			logger.Info("embedding stage stopped", "reason", err)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("embed stage: %w", err)
		}
		result.Embed.ProcessedArtifacts += res.ProcessedArtifacts
		result.Embed.EmbeddedChunks += res.EmbeddedChunks
		result.Embed.SkippedChunks += res.SkippedChunks
		result.Embed.Done = res.Done
		if res.Done || res.EmbeddedChunks == 0 {
			break
		}
	}

	result.Duration = time.Since(start)
	logger.Info("pipeline run completed",
		"indexed", result.Index.Processed,
		"ingested", result.Ingest.Ingested,
		"embedded", result.Embed.EmbeddedChunks,
		"duration", result.Duration,
	)
	return result, nil
}

func (r *PipelineRunner) extendLock(ctx context.Context, ownerID string) {
	if r.lock == nil {
		return
	}
	if err := r.lock.Extend(ctx, pipelineLockName(ownerID), r.lockTTL); err != nil {
		r.logger.Warn("failed to extend pipeline lock", "owner_id", ownerID, "error", err)
	}
}

// Enqueue schedules a background run unless one is already pending.
func (r *PipelineRunner) Enqueue(ctx context.Context, ownerID string) (*domain.Task, error) {
	if err := domain.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	if r.taskQueue == nil {
		return nil, fmt.Errorf("%w: background runs are not configured", domain.ErrFeatureDisabled)
	}
	pending, err := r.taskQueue.HasPending(ctx, ownerID, domain.TaskTypePipelineRun)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending runs: %w", err)
	}
	if pending {
		return nil, domain.ErrRunInProgress
	}
	task := domain.NewPipelineRunTask(ownerID)
	if err := r.taskQueue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to enqueue pipeline run: %w", err)
	}
	r.logger.Info("pipeline run enqueued", "owner_id", ownerID, "task_id", task.ID)
	return task, nil
}
