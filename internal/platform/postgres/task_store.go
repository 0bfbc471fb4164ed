package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/showhn-judge/internal/domain"
	"github.com/phrazzld/showhn-judge/internal/platform/logger"
	"github.com/phrazzld/showhn-judge/internal/store"
)

// taskColumns is the column list every task query selects, in scanTask order.
const taskColumns = `id, task_type, subject_id, status, priority, attempts, max_attempts, created_at, started_at, completed_at, last_error`

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
// Claim atomicity comes from single-statement UPDATEs over FOR UPDATE SKIP
// LOCKED subselects; multi-step mutations run inside explicit transactions.
type PostgresTaskStore struct {
	db *sql.DB
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db *sql.DB) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Enqueue inserts a new pending task unless an active task for the same
// (type, subject) pair exists. Non-force enqueues take a per-pair advisory
// lock for the transaction: at READ COMMITTED two simultaneous NOT EXISTS
// checks would each miss the other's uncommitted row, so the check and the
// insert must be serialized per pair. Force enqueues skip both the lock
// and the check.
func (s *PostgresTaskStore) Enqueue(
	ctx context.Context,
	taskType domain.TaskType,
	subjectID uuid.UUID,
	priority int,
	force bool,
) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	task, err := domain.NewTask(taskType, subjectID, priority)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO tasks (id, task_type, subject_id, status, priority, attempts, max_attempts, created_at)
		SELECT $1, $2, $3, $4, $5, 0, $6, $7
		WHERE $8::boolean OR NOT EXISTS (
			SELECT 1 FROM tasks
			WHERE task_type = $2 AND subject_id = $3 AND status IN ('pending', 'processing')
		)
	`

	var inserted bool
	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if !force {
			_, err := tx.ExecContext(ctx,
				`SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2::text))`,
				string(taskType), subjectID)
			if err != nil {
				return fmt.Errorf("failed to lock enqueue pair: %w", err)
			}
		}

		result, err := tx.ExecContext(ctx, query,
			task.ID,
			task.Type,
			task.SubjectID,
			task.Status,
			task.Priority,
			task.MaxAttempts,
			task.CreatedAt,
			force,
		)
		if err != nil {
			return fmt.Errorf("failed to enqueue task: %w", MapError(err))
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted = rowsAffected > 0
		return nil
	})
	if err != nil {
		log.Error("failed to enqueue task",
			"task_type", taskType,
			"subject_id", subjectID,
			"error", err)
		return nil, err
	}

	if !inserted {
		// An active task for this (type, subject) already exists.
		log.Debug("enqueue skipped, active task exists",
			"task_type", taskType,
			"subject_id", subjectID)
		return nil, nil
	}

	return task, nil
}

// DequeueBatch atomically claims up to n pending tasks. The SKIP LOCKED
// subselect guarantees no two concurrent callers claim the same row, and
// the claim transition happens in the same statement as the selection.
func (s *PostgresTaskStore) DequeueBatch(
	ctx context.Context,
	n int,
	taskType *domain.TaskType,
) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	if n <= 0 {
		return nil, nil
	}

	var typeFilter sql.NullString
	if taskType != nil {
		typeFilter = sql.NullString{String: string(*taskType), Valid: true}
	}

	query := `
		UPDATE tasks
		SET status = 'processing', attempts = attempts + 1, started_at = $1
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status = 'pending' AND ($2::text IS NULL OR task_type = $2)
			ORDER BY priority DESC, created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns

	rows, err := s.db.QueryContext(ctx, query, time.Now().UTC(), typeFilter, n)
	if err != nil {
		log.Error("failed to dequeue tasks", "error", err)
		return nil, fmt.Errorf("failed to dequeue tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	// UPDATE ... RETURNING does not preserve the subselect's order;
	// restore the deterministic claim order for callers.
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}

// DequeueOne claims a single pending task, or returns nil when the queue
// is empty.
func (s *PostgresTaskStore) DequeueOne(
	ctx context.Context,
	taskType *domain.TaskType,
) (*domain.Task, error) {
	tasks, err := s.DequeueBatch(ctx, 1, taskType)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// CompleteTask marks a task completed and clears its last error.
func (s *PostgresTaskStore) CompleteTask(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tasks
		SET status = 'completed', completed_at = $1, last_error = NULL
		WHERE id = $2
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrTaskNotFound
	}

	return nil
}

// FailTask records a failure. Tasks with attempt budget left return to
// pending for retry; exhausted tasks become terminally failed. The
// read-then-write runs inside one transaction so concurrent workers never
// act on a half-updated row.
func (s *PostgresTaskStore) FailTask(ctx context.Context, id uuid.UUID, taskErr error) error {
	log := logger.FromContext(ctx)

	message := "unknown error"
	if taskErr != nil {
		message = taskErr.Error()
	}

	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var attempts, maxAttempts int
		row := tx.QueryRowContext(ctx,
			`SELECT attempts, max_attempts FROM tasks WHERE id = $1 FOR UPDATE`, id)
		if err := row.Scan(&attempts, &maxAttempts); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrTaskNotFound
			}
			return fmt.Errorf("failed to load task for failure: %w", err)
		}

		if attempts < maxAttempts {
			_, err := tx.ExecContext(ctx, `
				UPDATE tasks
				SET status = 'pending', started_at = NULL, last_error = $1
				WHERE id = $2
			`, message, id)
			if err != nil {
				return fmt.Errorf("failed to requeue task: %w", err)
			}
			log.Info("task failed, returned to pending",
				"task_id", id,
				"attempts", attempts,
				"max_attempts", maxAttempts,
				"error", message)
			return nil
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET status = 'failed', completed_at = $1, last_error = $2
			WHERE id = $3
		`, time.Now().UTC(), message, id)
		if err != nil {
			return fmt.Errorf("failed to mark task failed: %w", err)
		}
		log.Warn("task failed terminally",
			"task_id", id,
			"attempts", attempts,
			"error", message)
		return nil
	})
}

// ReclaimStaleTasks recovers processing tasks whose claim is older than
// the timeout, treating each as a crashed worker's claim. The reclaim
// consumes one attempt. Tasks within the window are never touched.
func (s *PostgresTaskStore) ReclaimStaleTasks(
	ctx context.Context,
	timeout time.Duration,
) (int, error) {
	log := logger.FromContext(ctx)
	cutoff := time.Now().UTC().Add(-timeout)

	reclaimed := 0
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, attempts, max_attempts FROM tasks
			WHERE status = 'processing' AND started_at < $1
			FOR UPDATE SKIP LOCKED
		`, cutoff)
		if err != nil {
			return fmt.Errorf("failed to select stale tasks: %w", err)
		}

		type staleTask struct {
			id          uuid.UUID
			attempts    int
			maxAttempts int
		}
		var stale []staleTask
		for rows.Next() {
			var st staleTask
			if err := rows.Scan(&st.id, &st.attempts, &st.maxAttempts); err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to scan stale task: %w", err)
			}
			stale = append(stale, st)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating stale tasks: %w", err)
		}
		_ = rows.Close()

		for _, st := range stale {
			attempts := st.attempts + 1
			if attempts >= st.maxAttempts {
				_, err = tx.ExecContext(ctx, `
					UPDATE tasks
					SET status = 'failed', attempts = $1, completed_at = $2,
					    last_error = 'reclaimed after stale timeout'
					WHERE id = $3
				`, attempts, time.Now().UTC(), st.id)
			} else {
				_, err = tx.ExecContext(ctx, `
					UPDATE tasks
					SET status = 'pending', attempts = $1, started_at = NULL,
					    last_error = 'reclaimed after stale timeout'
					WHERE id = $2
				`, attempts, st.id)
			}
			if err != nil {
				return fmt.Errorf("failed to reclaim task %s: %w", st.id, err)
			}
			reclaimed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if reclaimed > 0 {
		log.Info("reclaimed stale tasks", "count", reclaimed, "timeout", timeout)
	}
	return reclaimed, nil
}

// GetStats returns task counts grouped by (type, status).
func (s *PostgresTaskStore) GetStats(ctx context.Context) ([]store.TaskStats, error) {
	query := `
		SELECT task_type, status, COUNT(*)
		FROM tasks
		GROUP BY task_type, status
		ORDER BY task_type, status
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query task stats: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var stats []store.TaskStats
	for rows.Next() {
		var st store.TaskStats
		if err := rows.Scan(&st.Type, &st.Status, &st.Count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats rows: %w", err)
	}

	return stats, nil
}

// scanTask reads one task row in taskColumns order.
func scanTask(rows *sql.Rows) (*domain.Task, error) {
	var (
		task        domain.Task
		startedAt   sql.NullTime
		completedAt sql.NullTime
		lastError   sql.NullString
	)

	err := rows.Scan(
		&task.ID,
		&task.Type,
		&task.SubjectID,
		&task.Status,
		&task.Priority,
		&task.Attempts,
		&task.MaxAttempts,
		&task.CreatedAt,
		&startedAt,
		&completedAt,
		&lastError,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	task.LastError = lastError.String

	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("loaded task failed validation: %w", err)
	}

	return &task, nil
}
