package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driving"
)

// Ensure Scheduler implements the driving port
var _ driving.Scheduler = (*Scheduler)(nil)

// DefaultPipelineSchedule enqueues a pipeline run for every connected owner
// every 30 minutes.
const DefaultPipelineSchedule = "*/30 * * * *"

// Scheduler enqueues background tasks for every owner with Drive
// credentials on cron schedules. It runs on worker nodes.
//
// For multi-worker deployments, configure a DistributedLock to prevent
// duplicate task enqueuing across instances.
type Scheduler struct {
	creds     driven.CredentialStore
	taskQueue driven.TaskQueue
	lock      driven.DistributedLock
	logger    *slog.Logger

	pipelineSpec string
	pruneSpec    string
	lockTTL      time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	running bool
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Credentials      driven.CredentialStore
	TaskQueue        driven.TaskQueue
	Lock             driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger           *slog.Logger
	PipelineSchedule string        // Cron spec for pipeline runs (default: every 30 minutes)
	PruneSchedule    string        // Cron spec for pruning superseded embeddings (empty disables)
	LockTTL          time.Duration // TTL for the scheduler lock (default: 60s)
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pipelineSpec := cfg.PipelineSchedule
	if pipelineSpec == "" {
		pipelineSpec = DefaultPipelineSchedule
	}
	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 60 * time.Second
	}

	return &Scheduler{
		creds:        cfg.Credentials,
		taskQueue:    cfg.TaskQueue,
		lock:         cfg.Lock,
		logger:       logger,
		pipelineSpec: pipelineSpec,
		pruneSpec:    cfg.PruneSchedule,
		lockTTL:      lockTTL,
	}
}

// Start registers the cron jobs and begins scheduling.
// Invalid cron specs are returned as errors.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser))
	if _, err := c.AddFunc(s.pipelineSpec, s.job(domain.TaskTypePipelineRun)); err != nil {
		return err
	}
	if s.pruneSpec != "" {
		if _, err := c.AddFunc(s.pruneSpec, s.job(domain.TaskTypePruneEmbeddings)); err != nil {
			return err
		}
	}

	s.ctx = ctx
	s.cron = c
	s.running = true
	c.Start()

	s.logger.Info("scheduler starting",
		"pipeline_schedule", s.pipelineSpec,
		"prune_schedule", s.pruneSpec,
	)
	return nil
}

// Stop stops scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.running = false
	s.mu.Unlock()

	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// job wraps a tick so overlapping ticks are skipped.
func (s *Scheduler) job(taskType domain.TaskType) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			s.logger.Info("scheduler tick skipped: still running", "task_type", taskType)
			return
		}
		defer running.Store(false)
		s.Tick(s.context(), taskType)
	}
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Tick enqueues one task of taskType for every owner with credentials that
// has none pending. Returns the number of tasks enqueued.
// If a distributed lock is configured, the tick is skipped unless the lock
// is acquired.
func (s *Scheduler) Tick(ctx context.Context, taskType domain.TaskType) int {
	if s.lock != nil {
		name := "scheduler:" + string(taskType)
		acquired, err := s.lock.Acquire(ctx, name, s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire scheduler lock", "error", err)
			return 0
		}
		if !acquired {
			s.logger.Debug("scheduler lock held by another instance, skipping cycle")
			return 0
		}
		defer func() {
			if err := s.lock.Release(ctx, name); err != nil {
				s.logger.Warn("failed to release scheduler lock", "error", err)
			}
		}()
	}

	owners, err := s.creds.ListOwners(ctx)
	if err != nil {
		s.logger.Error("failed to list connected owners", "error", err)
		return 0
	}

	enqueued := 0
	for _, ownerID := range owners {
		pending, err := s.taskQueue.HasPending(ctx, ownerID, taskType)
		if err != nil {
			s.logger.Error("failed to check pending tasks", "owner_id", ownerID, "error", err)
			continue
		}
		if pending {
			continue
		}

		task := domain.NewTask(taskType, ownerID, nil)
		if err := s.taskQueue.Enqueue(ctx, task); err != nil {
			s.logger.Error("failed to enqueue scheduled task",
				"owner_id", ownerID,
				"task_type", taskType,
				"error", err,
			)
			continue
		}
		enqueued++
	}

	s.logger.Info("scheduler tick completed",
		"task_type", taskType,
		"owners", len(owners),
		"enqueued", enqueued,
	)
	return enqueued
}
