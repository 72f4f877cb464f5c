package domain

import (
	"time"

	"github.com/google/uuid"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	return uuid.NewString()
}

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypePipelineRun runs index, ingest and embed for one owner
	TaskTypePipelineRun     TaskType = "pipeline_run"
	// TaskTypePruneEmbeddings removes superseded embeddings for one owner
	TaskTypePruneEmbeddings TaskType = "prune_embeddings"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// maxTaskBackoff caps the retry delay of a failed task
const maxTaskBackoff = 5 * time.Minute

// Task represents a background job to be processed by workers
type Task struct {
	ID      string   `json:"id"`
	Type    TaskType `json:"type"`
	OwnerID string   `json:"ownerId"`

	// Payload contains task-specific data
	Payload map[string]string `json:"payload,omitempty"`

	Status      TaskStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`

	// Error contains the last error message if failed
	Error string `json:"error,omitempty"`

	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	ScheduledFor time.Time  `json:"scheduledFor"`
}

// NewTask creates a new task with default values
func NewTask(taskType TaskType, ownerID string, payload map[string]string) *Task {
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		OwnerID:      ownerID,
		Payload:      payload,
		Status:       TaskStatusPending,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewPipelineRunTask creates a task to run the full pipeline for an owner
func NewPipelineRunTask(ownerID string) *Task {
	return NewTask(TaskTypePipelineRun, ownerID, nil)
}

// NewPruneEmbeddingsTask creates a task to prune superseded embeddings
func NewPruneEmbeddingsTask(ownerID string) *Task {
	return NewTask(TaskTypePruneEmbeddings, ownerID, nil)
}

// CanRetry returns true if the task can be retried
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// RetryBackoff is the delay before the next attempt: 1s, 2s, 4s, ... capped at 5m.
func (t *Task) RetryBackoff() time.Duration {
	if t.Attempts >= 9 {
		return maxTaskBackoff
	}
	backoff := time.Duration(1<<t.Attempts) * time.Second
	if backoff > maxTaskBackoff {
		backoff = maxTaskBackoff
	}
	return backoff
}

// MarkProcessing updates the task to processing state
func (t *Task) MarkProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
	t.Attempts++
}

// MarkCompleted updates the task to completed state
func (t *Task) MarkCompleted() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = ""
}

// MarkFailed updates the task to failed state
func (t *Task) MarkFailed(err string) {
	t.Status = TaskStatusFailed
	t.UpdatedAt = time.Now()
	t.Error = err
}

// Retry resets the task for retry with exponential backoff
func (t *Task) Retry(err string) {
	now := time.Now()
	t.Status = TaskStatusPending
	t.UpdatedAt = now
	t.Error = err
	t.ScheduledFor = now.Add(t.RetryBackoff())
}
