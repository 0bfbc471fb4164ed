package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/showhn-judge/internal/domain"
)

// SubjectFilter selects subjects for bulk re-enqueueing. Exactly one of
// the selector fields should be set; a zero filter selects all subjects.
type SubjectFilter struct {
	// MissingVerdict selects subjects with no verdict row.
	MissingVerdict bool

	// AnalyzedBefore selects subjects verdicted before the cutoff.
	AnalyzedBefore *time.Time

	// ModelID selects subjects verdicted by a specific model.
	ModelID string

	// IDs selects an explicit subject list.
	IDs []uuid.UUID
}

// VerdictStore persists verdicts, one per subject. Only the batch judge
// writes verdicts; re-judging a subject overwrites the previous row.
type VerdictStore interface {
	// Upsert inserts the verdict or replaces the subject's existing one.
	// The verdict must satisfy domain validation (score derived from tier,
	// tags within vocabulary).
	Upsert(ctx context.Context, verdict *domain.Verdict) error

	// GetBySubject retrieves the verdict for a subject.
	// Returns ErrVerdictNotFound if the subject has no verdict.
	GetBySubject(ctx context.Context, subjectID uuid.UUID) (*domain.Verdict, error)

	// SelectSubjectIDs returns the IDs of subjects matching the filter,
	// used by reprocessing tooling to bulk force-enqueue.
	SelectSubjectIDs(ctx context.Context, filter SubjectFilter) ([]uuid.UUID, error)
}
