package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/showhn-judge/internal/domain"
	"github.com/phrazzld/showhn-judge/internal/store"
)

func TestEnqueueDeduplicates(t *testing.T) {
	db := newTestDB(t)
	tasks := NewPostgresTaskStore(db)
	subject := createTestSubject(t, db, "dedupe")
	ctx := context.Background()

	first, err := tasks.Enqueue(ctx, domain.TaskTypeCombined, subject.ID, 0, false)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Second enqueue while the first is still active is a no-op.
	second, err := tasks.Enqueue(ctx, domain.TaskTypeCombined, subject.ID, 0, false)
	require.NoError(t, err)
	assert.Nil(t, second)

	// A different type is an independent slot.
	visual, err := tasks.Enqueue(ctx, domain.TaskTypeVisual, subject.ID, 0, false)
	require.NoError(t, err)
	assert.NotNil(t, visual)

	// Force bypasses the active-pair check.
	forced, err := tasks.Enqueue(ctx, domain.TaskTypeCombined, subject.ID, 0, true)
	require.NoError(t, err)
	assert.NotNil(t, forced)
}

func TestEnqueueConcurrentDuplicatesInsertOnce(t *testing.T) {
	db := newTestDB(t)
	tasks := NewPostgresTaskStore(db)
	subject := createTestSubject(t, db, "concurrent-enqueue")
	ctx := context.Background()

	// All goroutines race the same (type, subject) pair; the per-pair
	// serialization must let exactly one insert through.
	const callers = 8
	var wg sync.WaitGroup
	created := make(chan *domain.Task, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := tasks.Enqueue(ctx, domain.TaskTypeCombined, subject.ID, 0, false)
			require.NoError(t, err)
			if task != nil {
				created <- task
			}
		}()
	}
	wg.Wait()
	close(created)

	inserted := 0
	for range created {
		inserted++
	}
	assert.Equal(t, 1, inserted)

	var active int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT count(*) FROM tasks
		 WHERE task_type = $1 AND subject_id = $2 AND status IN ('pending', 'processing')`,
		domain.TaskTypeCombined, subject.ID).Scan(&active))
	assert.Equal(t, 1, active)
}

func TestTaskLifecycle(t *testing.T) {
	db := newTestDB(t)
	tasks := NewPostgresTaskStore(db)
	subject := createTestSubject(t, db, "lifecycle")
	ctx := context.Background()

	enqueued, err := tasks.Enqueue(ctx, domain.TaskTypeCombined, subject.ID, 10, false)
	require.NoError(t, err)
	require.NotNil(t, enqueued)

	claimed, err := tasks.DequeueOne(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, enqueued.ID, claimed.ID)
	assert.Equal(t, domain.TaskStatusProcessing, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)
	assert.NotNil(t, claimed.StartedAt)

	require.NoError(t, tasks.CompleteTask(ctx, claimed.ID))

	// No active task remains, so re-enqueueing creates a new row.
	again, err := tasks.Enqueue(ctx, domain.TaskTypeCombined, subject.ID, 10, false)
	require.NoError(t, err)
	assert.NotNil(t, again)
	assert.NotEqual(t, enqueued.ID, again.ID)
}

func TestDequeueOrdering(t *testing.T) {
	db := newTestDB(t)
	tasks := NewPostgresTaskStore(db)
	ctx := context.Background()

	low := createTestSubject(t, db, "low")
	high := createTestSubject(t, db, "high")
	mid := createTestSubject(t, db, "mid")

	_, err := tasks.Enqueue(ctx, domain.TaskTypeJudge, low.ID, 1, false)
	require.NoError(t, err)
	_, err = tasks.Enqueue(ctx, domain.TaskTypeJudge, high.ID, 10, false)
	require.NoError(t, err)
	_, err = tasks.Enqueue(ctx, domain.TaskTypeJudge, mid.ID, 5, false)
	require.NoError(t, err)

	claimed, err := tasks.DequeueBatch(ctx, 3, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	assert.Equal(t, high.ID, claimed[0].SubjectID)
	assert.Equal(t, mid.ID, claimed[1].SubjectID)
	assert.Equal(t, low.ID, claimed[2].SubjectID)
}

func TestDequeueTypeFilter(t *testing.T) {
	db := newTestDB(t)
	tasks := NewPostgresTaskStore(db)
	ctx := context.Background()

	visual := createTestSubject(t, db, "visual")
	judged := createTestSubject(t, db, "judged")

	_, err := tasks.Enqueue(ctx, domain.TaskTypeVisual, visual.ID, 0, false)
	require.NoError(t, err)
	_, err = tasks.Enqueue(ctx, domain.TaskTypeJudge, judged.ID, 0, false)
	require.NoError(t, err)

	visualType := domain.TaskTypeVisual
	claimed, err := tasks.DequeueBatch(ctx, 10, &visualType)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, visual.ID, claimed[0].SubjectID)
}

func TestConcurrentDequeueClaimsDisjointTasks(t *testing.T) {
	db := newTestDB(t)
	tasks := NewPostgresTaskStore(db)
	ctx := context.Background()

	const total = 20
	for i := 0; i < total; i++ {
		subject := createTestSubject(t, db, uuid.NewString())
		_, err := tasks.Enqueue(ctx, domain.TaskTypeJudge, subject.ID, 0, false)
		require.NoError(t, err)
	}

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[uuid.UUID]int)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch, err := tasks.DequeueBatch(ctx, 5, nil)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, task := range batch {
				claimed[task.ID]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, total)
	for id, count := range claimed {
		assert.Equal(t, 1, count, "task %s claimed more than once", id)
	}
}

func TestFailTaskRetriesThenTerminates(t *testing.T) {
	db := newTestDB(t)
	tasks := NewPostgresTaskStore(db)
	subject := createTestSubject(t, db, "failing")
	ctx := context.Background()

	_, err := tasks.Enqueue(ctx, domain.TaskTypeJudge, subject.ID, 0, false)
	require.NoError(t, err)

	var last *domain.Task
	for attempt := 1; attempt <= domain.DefaultMaxAttempts; attempt++ {
		last, err = tasks.DequeueOne(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, last, "attempt %d should find a pending task", attempt)
		assert.Equal(t, attempt, last.Attempts)

		require.NoError(t, tasks.FailTask(ctx, last.ID, errors.New("navigation timed out")))
	}

	// Budget exhausted: the task is terminal and never dequeued again.
	var status string
	var lastError string
	err = db.QueryRow(`SELECT status, last_error FROM tasks WHERE id = $1`, last.ID).
		Scan(&status, &lastError)
	require.NoError(t, err)
	assert.Equal(t, "failed", status)
	assert.Equal(t, "navigation timed out", lastError)

	none, err := tasks.DequeueOne(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFailTaskUnknownID(t *testing.T) {
	db := newTestDB(t)
	tasks := NewPostgresTaskStore(db)

	err := tasks.FailTask(context.Background(), uuid.New(), errors.New("nope"))
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestReclaimStaleTasks(t *testing.T) {
	db := newTestDB(t)
	tasks := NewPostgresTaskStore(db)
	ctx := context.Background()

	t.Run("reclaims old claim back to pending with consumed attempt", func(t *testing.T) {
		subject := createTestSubject(t, db, "stale-pending")
		_, err := tasks.Enqueue(ctx, domain.TaskTypeCombined, subject.ID, 0, false)
		require.NoError(t, err)

		claimed, err := tasks.DequeueOne(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, claimed)

		// Backdate the claim past the stale window.
		_, err = db.Exec(`UPDATE tasks SET started_at = NOW() - INTERVAL '400 seconds' WHERE id = $1`, claimed.ID)
		require.NoError(t, err)

		count, err := tasks.ReclaimStaleTasks(ctx, 300*time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		var status string
		var attempts int
		require.NoError(t, db.QueryRow(
			`SELECT status, attempts FROM tasks WHERE id = $1`, claimed.ID).Scan(&status, &attempts))
		assert.Equal(t, "pending", status)
		assert.Equal(t, 2, attempts)
	})

	t.Run("never touches claims inside the window", func(t *testing.T) {
		subject := createTestSubject(t, db, "stale-fresh")
		_, err := tasks.Enqueue(ctx, domain.TaskTypeCombined, subject.ID, 0, false)
		require.NoError(t, err)

		claimed, err := tasks.DequeueOne(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, claimed)

		count, err := tasks.ReclaimStaleTasks(ctx, 300*time.Second)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		var status string
		require.NoError(t, db.QueryRow(
			`SELECT status FROM tasks WHERE id = $1`, claimed.ID).Scan(&status))
		assert.Equal(t, "processing", status)
	})

	t.Run("exhausted task becomes terminally failed", func(t *testing.T) {
		subject := createTestSubject(t, db, "stale-exhausted")
		_, err := tasks.Enqueue(ctx, domain.TaskTypeCombined, subject.ID, 0, false)
		require.NoError(t, err)

		claimed, err := tasks.DequeueOne(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, claimed)

		_, err = db.Exec(`
			UPDATE tasks SET attempts = max_attempts - 1,
			started_at = NOW() - INTERVAL '400 seconds' WHERE id = $1`, claimed.ID)
		require.NoError(t, err)

		count, err := tasks.ReclaimStaleTasks(ctx, 300*time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		var status, lastError string
		require.NoError(t, db.QueryRow(
			`SELECT status, last_error FROM tasks WHERE id = $1`, claimed.ID).Scan(&status, &lastError))
		assert.Equal(t, "failed", status)
		assert.Equal(t, "reclaimed after stale timeout", lastError)
	})
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t)
	tasks := NewPostgresTaskStore(db)
	ctx := context.Background()

	a := createTestSubject(t, db, "stats-a")
	b := createTestSubject(t, db, "stats-b")

	_, err := tasks.Enqueue(ctx, domain.TaskTypeJudge, a.ID, 0, false)
	require.NoError(t, err)
	_, err = tasks.Enqueue(ctx, domain.TaskTypeVisual, b.ID, 0, false)
	require.NoError(t, err)

	stats, err := tasks.GetStats(ctx)
	require.NoError(t, err)

	counts := map[string]int{}
	for _, st := range stats {
		counts[string(st.Type)+"/"+string(st.Status)] = st.Count
	}
	assert.Equal(t, 1, counts["judge/pending"])
	assert.Equal(t, 1, counts["visual/pending"])
}
