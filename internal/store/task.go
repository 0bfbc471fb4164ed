package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/showhn-judge/internal/domain"
)

// TaskStats is one row of the per-(type, status) queue breakdown.
type TaskStats struct {
	Type   domain.TaskType
	Status domain.TaskStatus
	Count  int
}

// TaskStore is the persistent work queue. All mutating operations are
// atomic with respect to concurrent callers: safety relies on the store's
// transaction guarantees, not on in-memory locks, so several worker
// processes may poll the same store without coordination.
type TaskStore interface {
	// Enqueue inserts a new pending task. When force is false it is a
	// no-op if an active (pending or processing) task already exists for
	// the same (type, subject) pair; the check and the insert are
	// serialized per pair so concurrent callers cannot both insert.
	// Returns the created task, or nil when skipped.
	Enqueue(ctx context.Context, taskType domain.TaskType, subjectID uuid.UUID, priority int, force bool) (*domain.Task, error)

	// DequeueBatch atomically claims up to n pending tasks, optionally
	// filtered by type, ordered by priority descending then creation time
	// ascending. Each claimed task transitions to processing with
	// attempts incremented and started_at set in the same transaction as
	// the selection; no two concurrent callers can claim the same row.
	DequeueBatch(ctx context.Context, n int, taskType *domain.TaskType) ([]*domain.Task, error)

	// DequeueOne is DequeueBatch with n=1. Returns nil when the queue is empty.
	DequeueOne(ctx context.Context, taskType *domain.TaskType) (*domain.Task, error)

	// CompleteTask marks a task completed and clears its last error.
	CompleteTask(ctx context.Context, id uuid.UUID) error

	// FailTask records the failure. If the task still has attempts left it
	// returns to pending for retry (started_at cleared); otherwise it is
	// terminally failed.
	FailTask(ctx context.Context, id uuid.UUID, taskErr error) error

	// ReclaimStaleTasks recovers tasks stuck in processing longer than the
	// timeout (a crashed claim). The reclaim consumes one attempt: tasks
	// with budget left return to pending, exhausted tasks become failed.
	// Tasks within the timeout window are never touched. Returns the
	// number of tasks reclaimed.
	ReclaimStaleTasks(ctx context.Context, timeout time.Duration) (int, error)

	// GetStats returns task counts grouped by (type, status). Read-only.
	GetStats(ctx context.Context) ([]TaskStats, error)
}
