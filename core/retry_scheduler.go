package core

import (
	"context"
	"fmt"
	"time"
)

// RetryScheduler periodically replays durable tasks whose backoff window
// has elapsed. The attempt is recorded before the replay runs so a crash
// mid-replay still consumes the attempt instead of looping forever.
type RetryScheduler struct {
	config  Config
	tasks   TaskStore
	replay  func(ctx context.Context, task Task) error
	logger  Logger
	now     func() time.Time
	ticker  func(d time.Duration) *time.Ticker
	stopped chan struct{}
}

func NewRetryScheduler(cfg Config, tasks TaskStore, pipeline *Pipeline, logger Logger) (*RetryScheduler, error) {
	if tasks == nil {
		return nil, fmt.Errorf("core: task store is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("core: pipeline is required")
	}
	return &RetryScheduler{
		config: cfg,
		tasks:  tasks,
		replay: pipeline.Replay,
		logger: logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
		ticker:  time.NewTicker,
		stopped: make(chan struct{}),
	}, nil
}

// Start runs retry passes on the configured poll interval until the
// context is canceled. It blocks; callers run it in a goroutine.
func (s *RetryScheduler) Start(ctx context.Context) error {
	if s == nil {
		return NewPersistenceError("core: retry scheduler is not configured")
	}
	defer close(s.stopped)
	t := s.ticker(s.config.Retry.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			stats, err := s.RunPass(ctx)
			if err != nil {
				logError(ctx, s.logger, "retry pass failed", map[string]any{"error": err.Error()})
				continue
			}
			if stats.Due > 0 {
				logInfo(ctx, s.logger, "retry pass complete", map[string]any{
					"due":     stats.Due,
					"retired": stats.Retired,
					"failed":  stats.Failed,
					"frozen":  stats.Frozen,
				})
			}
		}
	}
}

// Stopped reports scheduler shutdown; tests use it to await the final pass.
func (s *RetryScheduler) Stopped() <-chan struct{} {
	return s.stopped
}

// RunPass replays every task that is currently due. Tasks that succeed are
// deleted; tasks that fail keep the recorded attempt plus the failure
// message, so the store's due query freezes them once they hit the cap.
func (s *RetryScheduler) RunPass(ctx context.Context) (RetryStats, error) {
	if s == nil {
		return RetryStats{}, NewPersistenceError("core: retry scheduler is not configured")
	}
	now := s.now()
	due, err := s.tasks.ListDue(ctx, now, s.config.Retry.Backoff, s.config.Retry.MaxAttempts)
	if err != nil {
		return RetryStats{}, NewPersistenceError(fmt.Sprintf("core: list due tasks: %v", err))
	}
	stats := RetryStats{Due: len(due)}
	for _, task := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		// Record the attempt before doing the work: a replay that crashes
		// half way still counts against the cap.
		if err := s.tasks.MarkAttempt(ctx, task.ID, now); err != nil {
			stats.Failed++
			logError(ctx, s.logger, "mark attempt failed", map[string]any{
				"task_id": task.ID,
				"error":   err.Error(),
			})
			continue
		}
		task.AttemptCount++
		if err := s.replay(ctx, task); err != nil {
			stats.Failed++
			if task.Frozen(s.config.Retry.MaxAttempts) {
				stats.Frozen++
			}
			if recordErr := s.tasks.RecordError(ctx, task.ID, err.Error()); recordErr != nil {
				logError(ctx, s.logger, "record task error failed", map[string]any{
					"task_id": task.ID,
					"error":   recordErr.Error(),
				})
			}
			logError(ctx, s.logger, "task replay failed", map[string]any{
				"task_id": task.ID,
				"serial":  task.Serial,
				"attempt": task.AttemptCount,
				"error":   err.Error(),
			})
			continue
		}
		if err := s.tasks.Delete(ctx, task.ID); err != nil {
			stats.Failed++
			logError(ctx, s.logger, "retire task failed", map[string]any{
				"task_id": task.ID,
				"error":   err.Error(),
			})
			continue
		}
		stats.Retired++
		logInfo(ctx, s.logger, "task retired", map[string]any{
			"task_id": task.ID,
			"serial":  task.Serial,
			"attempt": task.AttemptCount,
		})
	}
	return stats, nil
}
