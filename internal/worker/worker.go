package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driving"
)

var errMissingOwner = errors.New("owner_id missing from task")

// Worker processes tasks from the task queue.
// Pipeline tasks run the full index, ingest and embed cycle for one owner.
type Worker struct {
	taskQueue driven.TaskQueue
	runner    driving.PipelineRunner
	embedding driving.EmbeddingPipeline
	scheduler driving.Scheduler
	logger    *slog.Logger
	handlers  map[domain.TaskType]taskHandler

	// Configuration
	concurrency    int
	dequeueTimeout int // seconds
	errorBackoff   time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// taskHandler runs one dequeued task
type taskHandler func(ctx context.Context, task *domain.Task, logger *slog.Logger) error

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Runner         driving.PipelineRunner
	Embedding      driving.EmbeddingPipeline // Optional: needed for prune_embeddings tasks
	Scheduler      driving.Scheduler         // Optional: started and stopped with the worker
	Logger         *slog.Logger
	Concurrency    int // Number of concurrent task processors
	DequeueTimeout int // Seconds to wait for a task before checking again
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	w := &Worker{
		taskQueue:      cfg.TaskQueue,
		runner:         cfg.Runner,
		embedding:      cfg.Embedding,
		scheduler:      cfg.Scheduler,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
		errorBackoff:   time.Second,
	}
	w.handlers = map[domain.TaskType]taskHandler{
		domain.TaskTypePipelineRun:     w.handlePipelineRun,
		domain.TaskTypePruneEmbeddings: w.handlePrune,
	}
	return w
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker, letting in-flight tasks finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Debug("worker stop signal received")
			return
		default:
		}

		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			select {
			case <-time.After(w.errorBackoff):
			case <-ctx.Done():
			case <-w.stopCh:
			}
			continue
		}

		if task == nil {
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

// processTask runs one task and acks or nacks it.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "owner_id", task.OwnerID)
	logger.Info("processing task", "attempt", task.Attempts)

	startTime := time.Now()
	var err error
	if handle, ok := w.handlers[task.Type]; ok {
		err = handle(ctx, task, logger)
	} else {
		err = fmt.Errorf("unknown task type: %s", task.Type)
	}

	duration := time.Since(startTime)

	// Another run already holds the owner lock and covers this task
	if errors.Is(err, domain.ErrRunInProgress) {
		logger.Info("task skipped, run already in progress", "duration", duration)
		err = nil
	}

	if err != nil {
		logger.Error("task failed",
			"duration", duration,
			"error", err,
		)

		// Nack the task so it can be retried
		if nackErr := w.taskQueue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	logger.Info("task completed", "duration", duration)

	if ackErr := w.taskQueue.Ack(ctx, task.ID); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

func (w *Worker) handlePipelineRun(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	if task.OwnerID == "" {
		return errMissingOwner
	}

	result, err := w.runner.RunOwner(ctx, task.OwnerID)
	if err != nil {
		return err
	}

	logger.Info("pipeline run finished",
		"indexed", result.Index.Processed,
		"ingested", result.Ingest.Ingested,
		"embedded_chunks", result.Embed.EmbeddedChunks,
	)
	return nil
}

func (w *Worker) handlePrune(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	if w.embedding == nil {
		return fmt.Errorf("prune task received but embeddings are not configured: %w", domain.ErrFeatureDisabled)
	}
	if task.OwnerID == "" {
		return errMissingOwner
	}

	result, err := w.embedding.PruneSuperseded(ctx, task.OwnerID)
	if err != nil {
		return err
	}
	logger.Info("pruned superseded embeddings", "deleted", result.Deleted)
	return nil
}

// Health reports worker and queue status.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
