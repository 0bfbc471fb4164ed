package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskType is the closed set of work-item kinds the worker understands.
// The tag is validated once when a row is loaded; handlers switch over it
// exhaustively instead of re-checking strings.
type TaskType string

const (
	// TaskTypeCombined acquires content, captures a screenshot, and judges.
	TaskTypeCombined TaskType = "combined"

	// TaskTypeJudge acquires content and judges without scheduling visual
	// work; screenshots still land when a render captures one in passing.
	TaskTypeJudge TaskType = "judge"

	// TaskTypeVisual only runs the screenshot/thumbnail pipeline.
	TaskTypeVisual TaskType = "visual"
)

// DefaultMaxAttempts is the attempt budget a task is created with.
const DefaultMaxAttempts = 3

// Common validation errors for Task
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptyTaskSubjectID = errors.New("task subject ID cannot be empty")
	ErrInvalidTaskType    = errors.New("invalid task type")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
)

// Task is a persisted unit of work over a single subject.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Type        TaskType   `json:"type"`
	SubjectID   uuid.UUID  `json:"subject_id"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// NewTask creates a pending Task for the given subject with a fresh ID and
// the default attempt budget. Returns an error if validation fails.
func NewTask(taskType TaskType, subjectID uuid.UUID, priority int) (*Task, error) {
	task := &Task{
		ID:          uuid.New(),
		Type:        taskType,
		SubjectID:   subjectID,
		Status:      TaskStatusPending,
		Priority:    priority,
		Attempts:    0,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.SubjectID == uuid.Nil {
		return ErrEmptyTaskSubjectID
	}

	if !IsValidTaskType(t.Type) {
		return ErrInvalidTaskType
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	return nil
}

// NeedsJudging reports whether this task type runs the acquire+judge phase.
func (t *Task) NeedsJudging() bool {
	return t.Type == TaskTypeCombined || t.Type == TaskTypeJudge
}

// IsValidTaskType checks if the given type is a member of the closed set.
func IsValidTaskType(taskType TaskType) bool {
	switch taskType {
	case TaskTypeCombined, TaskTypeJudge, TaskTypeVisual:
		return true
	default:
		return false
	}
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}
