package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/showhn-judge/internal/domain"
	"github.com/phrazzld/showhn-judge/internal/platform/logger"
	"github.com/phrazzld/showhn-judge/internal/store"
)

// PostgresSubjectStore implements the store.SubjectStore interface using PostgreSQL.
type PostgresSubjectStore struct {
	db store.DBTX
}

// NewPostgresSubjectStore creates a new PostgresSubjectStore.
func NewPostgresSubjectStore(db store.DBTX) *PostgresSubjectStore {
	return &PostgresSubjectStore{
		db: db,
	}
}

var _ store.SubjectStore = (*PostgresSubjectStore)(nil)

// Create saves a new subject.
func (s *PostgresSubjectStore) Create(ctx context.Context, subject *domain.Subject) error {
	if err := subject.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO subjects (
			id, title, url, author, points, comment_count, status,
			author_text, page_text, readme_text,
			repo_stars, repo_forks, repo_language, repo_description,
			has_screenshot, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	var url sql.NullString
	if subject.URL != "" {
		url = sql.NullString{String: subject.URL, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		subject.ID,
		subject.Title,
		url,
		subject.Author,
		subject.Points,
		subject.CommentCount,
		subject.Status,
		subject.AuthorText,
		subject.PageText,
		subject.ReadmeText,
		subject.RepoStars,
		subject.RepoForks,
		subject.RepoLanguage,
		subject.RepoDescription,
		subject.HasScreenshot,
		subject.CreatedAt,
		subject.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subject: %w", MapError(err))
	}

	return nil
}

// GetByID retrieves a subject by its unique ID.
func (s *PostgresSubjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subject, error) {
	query := `
		SELECT id, title, url, author, points, comment_count, status,
		       author_text, page_text, readme_text,
		       repo_stars, repo_forks, repo_language, repo_description,
		       has_screenshot, created_at, updated_at
		FROM subjects
		WHERE id = $1
	`

	var (
		subject domain.Subject
		url     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&subject.ID,
		&subject.Title,
		&url,
		&subject.Author,
		&subject.Points,
		&subject.CommentCount,
		&subject.Status,
		&subject.AuthorText,
		&subject.PageText,
		&subject.ReadmeText,
		&subject.RepoStars,
		&subject.RepoForks,
		&subject.RepoLanguage,
		&subject.RepoDescription,
		&subject.HasScreenshot,
		&subject.CreatedAt,
		&subject.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to get subject: %w", MapError(err))
	}
	subject.URL = url.String

	return &subject, nil
}

// UpdateAcquisition writes the acquirer's results for a subject. Nil
// fields in the update are left untouched via COALESCE.
func (s *PostgresSubjectStore) UpdateAcquisition(
	ctx context.Context,
	id uuid.UUID,
	update store.SubjectUpdate,
) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE subjects
		SET page_text        = COALESCE($1::text, page_text),
		    readme_text      = COALESCE($2::text, readme_text),
		    repo_stars       = COALESCE($3::integer, repo_stars),
		    repo_forks       = COALESCE($4::integer, repo_forks),
		    repo_language    = COALESCE($5::text, repo_language),
		    repo_description = COALESCE($6::text, repo_description),
		    updated_at       = $7
		WHERE id = $8
	`

	result, err := s.db.ExecContext(ctx, query,
		update.PageText,
		update.ReadmeText,
		update.RepoStars,
		update.RepoForks,
		update.RepoLanguage,
		update.RepoDescription,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		log.Error("failed to update subject acquisition", "subject_id", id, "error", err)
		return fmt.Errorf("failed to update subject acquisition: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrSubjectNotFound
	}

	return nil
}

// SetHasScreenshot flips the visual-capture-present flag.
func (s *PostgresSubjectStore) SetHasScreenshot(ctx context.Context, id uuid.UUID, has bool) error {
	return s.setColumn(ctx, id, `has_screenshot`, has)
}

// SetStatus updates the subject lifecycle status.
func (s *PostgresSubjectStore) SetStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.SubjectStatus,
) error {
	return s.setColumn(ctx, id, `status`, string(status))
}

// setColumn updates a single subject column plus updated_at. The column
// name is always a compile-time constant from this file.
func (s *PostgresSubjectStore) setColumn(
	ctx context.Context,
	id uuid.UUID,
	column string,
	value any,
) error {
	query := fmt.Sprintf(`UPDATE subjects SET %s = $1, updated_at = $2 WHERE id = $3`, column)

	result, err := s.db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update subject %s: %w", column, MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrSubjectNotFound
	}

	return nil
}
