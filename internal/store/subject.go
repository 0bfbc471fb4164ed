package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/phrazzld/showhn-judge/internal/domain"
)

// SubjectUpdate carries the fields the content acquirer writes back after
// an acquisition pass. Nil pointers leave the stored value untouched.
type SubjectUpdate struct {
	PageText        *string
	ReadmeText      *string
	RepoStars       *int
	RepoForks       *int
	RepoLanguage    *string
	RepoDescription *string
}

// SubjectStore persists subjects. The discovery feed creates them; the
// acquirer and capture pipeline mutate text, metadata, and lifecycle fields.
type SubjectStore interface {
	// Create saves a new subject. Returns ErrDuplicate when the ID exists.
	Create(ctx context.Context, subject *domain.Subject) error

	// GetByID retrieves a subject by its unique ID.
	// Returns ErrSubjectNotFound if the subject does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Subject, error)

	// UpdateAcquisition writes the acquirer's results for a subject.
	UpdateAcquisition(ctx context.Context, id uuid.UUID, update SubjectUpdate) error

	// SetHasScreenshot flips the visual-capture-present flag.
	SetHasScreenshot(ctx context.Context, id uuid.UUID, has bool) error

	// SetStatus updates the subject lifecycle status.
	SetStatus(ctx context.Context, id uuid.UUID, status domain.SubjectStatus) error
}
