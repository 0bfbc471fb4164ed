package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SubjectStatus represents the lifecycle state of a subject.
type SubjectStatus string

// Possible subject status values
const (
	// SubjectStatusActive subjects are scheduled normally.
	SubjectStatusActive SubjectStatus = "active"

	// SubjectStatusInactive subjects stopped rendering (capture permanently
	// failed) and are no longer selected for visual work. They stay
	// presentable as text-only.
	SubjectStatusInactive SubjectStatus = "inactive"

	// SubjectStatusNoLink subjects were discovered without an external URL.
	SubjectStatusNoLink SubjectStatus = "no_link"
)

// Common validation errors for Subject
var (
	ErrEmptySubjectID       = errors.New("subject ID cannot be empty")
	ErrEmptySubjectTitle    = errors.New("subject title cannot be empty")
	ErrInvalidSubjectStatus = errors.New("invalid subject status")
)

// Subject is a discovered content item (a post with a title and an
// optional external link) moving through the judging pipeline.
type Subject struct {
	ID           uuid.UUID     `json:"id"`
	Title        string        `json:"title"`
	URL          string        `json:"url,omitempty"`
	Author       string        `json:"author,omitempty"`
	Points       int           `json:"points"`
	CommentCount int           `json:"comment_count"`
	Status       SubjectStatus `json:"status"`

	// AuthorText is the poster's own description of the item, when the
	// discovery feed provides one.
	AuthorText string `json:"author_text,omitempty"`

	// PageText and ReadmeText are filled by the content acquirer.
	PageText   string `json:"page_text,omitempty"`
	ReadmeText string `json:"readme_text,omitempty"`

	// Repo* fields hold provider metadata when the link resolves to a
	// known hosting-provider repository.
	RepoStars       int    `json:"repo_stars,omitempty"`
	RepoForks       int    `json:"repo_forks,omitempty"`
	RepoLanguage    string `json:"repo_language,omitempty"`
	RepoDescription string `json:"repo_description,omitempty"`

	HasScreenshot bool `json:"has_screenshot"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSubject creates an active Subject with a fresh ID. Subjects without a
// URL are created in the no_link state.
func NewSubject(title, url string) (*Subject, error) {
	status := SubjectStatusActive
	if url == "" {
		status = SubjectStatusNoLink
	}

	subject := &Subject{
		ID:        uuid.New(),
		Title:     title,
		URL:       url,
		Status:    status,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := subject.Validate(); err != nil {
		return nil, err
	}

	return subject, nil
}

// Validate checks if the Subject has valid data.
func (s *Subject) Validate() error {
	if s.ID == uuid.Nil {
		return ErrEmptySubjectID
	}

	if s.Title == "" {
		return ErrEmptySubjectTitle
	}

	if !isValidSubjectStatus(s.Status) {
		return ErrInvalidSubjectStatus
	}

	return nil
}

// isValidSubjectStatus checks if the given status is a valid SubjectStatus.
func isValidSubjectStatus(status SubjectStatus) bool {
	switch status {
	case SubjectStatusActive, SubjectStatusInactive, SubjectStatusNoLink:
		return true
	default:
		return false
	}
}
