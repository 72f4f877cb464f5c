package driven

import (
	"context"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// TaskQueue handles background task queuing (PostgreSQL).
type TaskQueue interface {
	// Enqueue adds a task to the queue for processing.
	Enqueue(ctx context.Context, task *domain.Task) error

	// DequeueWithTimeout retrieves the next available task, waiting up to
	// timeout seconds. The task is marked as processing and will not be
	// returned to other workers. Returns nil, nil if the timeout is reached.
	DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error)

	// Ack marks a task completed.
	Ack(ctx context.Context, taskID string) error

	// Nack records a failure. The task is rescheduled with backoff while it
	// has attempts left, otherwise it is marked failed.
	Nack(ctx context.Context, taskID string, reason string) error

	// GetTask retrieves a task by ID (for status checking).
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)

	// HasPending reports whether a pending or processing task of taskType
	// exists for the owner.
	HasPending(ctx context.Context, ownerID string, taskType domain.TaskType) (bool, error)

	// PurgeTasks removes completed/failed tasks older than the given number of seconds.
	PurgeTasks(ctx context.Context, olderThan int) (int, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)

	// Ping checks if the queue backend is healthy.
	Ping(ctx context.Context) error

	// Close cleans up resources.
	Close() error
}

// QueueStats contains queue statistics
type QueueStats struct {
	PendingCount    int64 `json:"pending_count"`
	ProcessingCount int64 `json:"processing_count"`
	CompletedCount  int64 `json:"completed_count"`
	FailedCount     int64 `json:"failed_count"`

	// OldestPendingAge is the age of the oldest pending task in seconds
	OldestPendingAge int64 `json:"oldest_pending_age"`
}
