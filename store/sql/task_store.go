package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/osmi-labs/cardlink/core"
	"github.com/uptrace/bun"
)

// TaskStore persists retry tasks in the retry_tasks table. Due-ness is a
// property of the query, not the row: a task is due when its attempt count
// is below the cap and its backoff window has elapsed.
type TaskStore struct {
	db   *bun.DB
	repo repository.Repository[*taskRecord]
}

func NewTaskStore(db *bun.DB) (*TaskStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*taskRecord](db, taskHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid task repository wiring: %w", err)
		}
	}
	return &TaskStore{db: db, repo: repo}, nil
}

func (s *TaskStore) Enqueue(ctx context.Context, task core.Task) (string, error) {
	if s == nil || s.repo == nil {
		return "", fmt.Errorf("sqlstore: task store is not configured")
	}
	if strings.TrimSpace(task.Serial) == "" {
		return "", fmt.Errorf("sqlstore: task serial is required")
	}
	if strings.TrimSpace(task.Event) == "" {
		return "", fmt.Errorf("sqlstore: task event is required")
	}
	now := time.Now().UTC()
	createdAt := task.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	record := &taskRecord{
		ID:            uuid.NewString(),
		Kind:          string(task.Kind),
		Serial:        strings.TrimSpace(task.Serial),
		Event:         strings.TrimSpace(task.Event),
		CachedPayload: append([]byte(nil), task.CachedPayload...),
		AttemptCount:  task.AttemptCount,
		LastAttemptAt: cloneTime(task.LastAttemptAt),
		LastError:     strings.TrimSpace(task.LastError),
		CreatedAt:     createdAt,
		UpdatedAt:     now,
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func (s *TaskStore) ListDue(ctx context.Context, now time.Time, backoff time.Duration, maxAttempts int) ([]core.Task, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: task store is not configured")
	}
	cutoff := now.UTC().Add(-backoff)
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("attempt_count < ?", maxAttempts).
				Where("(last_attempt_at IS NULL OR last_attempt_at <= ?)", cutoff)
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	tasks := make([]core.Task, 0, len(records))
	for _, record := range records {
		tasks = append(tasks, taskRecordToDomain(record))
	}
	return tasks, nil
}

func (s *TaskStore) MarkAttempt(ctx context.Context, id string, now time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: task store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: task id is required")
	}
	stamp := now.UTC()
	result, err := s.db.NewUpdate().
		Model((*taskRecord)(nil)).
		Set("attempt_count = attempt_count + 1").
		Set("last_attempt_at = ?", stamp).
		Set("updated_at = ?", stamp).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: task store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: task id is required")
	}
	_, err := s.db.NewDelete().
		Model((*taskRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *TaskStore) RecordError(ctx context.Context, id string, message string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: task store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: task id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*taskRecord)(nil)).
		Set("last_error = ?", strings.TrimSpace(message)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *TaskStore) ListFrozen(ctx context.Context, maxAttempts int) ([]core.Task, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: task store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("attempt_count >= ?", maxAttempts)
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	tasks := make([]core.Task, 0, len(records))
	for _, record := range records {
		tasks = append(tasks, taskRecordToDomain(record))
	}
	return tasks, nil
}

func taskRecordToDomain(record *taskRecord) core.Task {
	if record == nil {
		return core.Task{}
	}
	return core.Task{
		ID:            record.ID,
		Kind:          core.TaskKind(record.Kind),
		Serial:        record.Serial,
		Event:         record.Event,
		CachedPayload: append([]byte(nil), record.CachedPayload...),
		AttemptCount:  record.AttemptCount,
		LastAttemptAt: cloneTime(record.LastAttemptAt),
		LastError:     record.LastError,
		CreatedAt:     record.CreatedAt,
	}
}

func cloneTime(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

var _ core.TaskStore = (*TaskStore)(nil)
