package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/phrazzld/showhn-judge/internal/domain"
	"github.com/phrazzld/showhn-judge/internal/platform/logger"
	"github.com/phrazzld/showhn-judge/internal/store"
)

// psql builds queries with PostgreSQL-style placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresVerdictStore implements the store.VerdictStore interface using
// PostgreSQL. List-valued verdict fields are persisted as JSONB.
type PostgresVerdictStore struct {
	db store.DBTX
}

// NewPostgresVerdictStore creates a new PostgresVerdictStore.
func NewPostgresVerdictStore(db store.DBTX) *PostgresVerdictStore {
	return &PostgresVerdictStore{
		db: db,
	}
}

var _ store.VerdictStore = (*PostgresVerdictStore)(nil)

// Upsert inserts the verdict or replaces the subject's existing one.
func (s *PostgresVerdictStore) Upsert(ctx context.Context, verdict *domain.Verdict) error {
	log := logger.FromContext(ctx)

	if err := verdict.Validate(); err != nil {
		return err
	}

	vibeTags, err := marshalList(verdict.VibeTags)
	if err != nil {
		return err
	}
	strengths, err := marshalList(verdict.Strengths)
	if err != nil {
		return err
	}
	weaknesses, err := marshalList(verdict.Weaknesses)
	if err != nil {
		return err
	}
	similarTo, err := marshalList(verdict.SimilarTo)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO verdicts (
			subject_id, tier, vibe_tags, highlight, strengths, weaknesses,
			similar_to, category, audience, score, analyzed_at, model_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (subject_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			vibe_tags = EXCLUDED.vibe_tags,
			highlight = EXCLUDED.highlight,
			strengths = EXCLUDED.strengths,
			weaknesses = EXCLUDED.weaknesses,
			similar_to = EXCLUDED.similar_to,
			category = EXCLUDED.category,
			audience = EXCLUDED.audience,
			score = EXCLUDED.score,
			analyzed_at = EXCLUDED.analyzed_at,
			model_id = EXCLUDED.model_id
	`

	_, err = s.db.ExecContext(ctx, query,
		verdict.SubjectID,
		verdict.Tier,
		vibeTags,
		verdict.Highlight,
		strengths,
		weaknesses,
		similarTo,
		verdict.Category,
		verdict.Audience,
		verdict.Score,
		verdict.AnalyzedAt,
		verdict.ModelID,
	)
	if err != nil {
		log.Error("failed to upsert verdict", "subject_id", verdict.SubjectID, "error", err)
		return fmt.Errorf("failed to upsert verdict: %w", MapError(err))
	}

	return nil
}

// GetBySubject retrieves the verdict for a subject.
func (s *PostgresVerdictStore) GetBySubject(
	ctx context.Context,
	subjectID uuid.UUID,
) (*domain.Verdict, error) {
	query := `
		SELECT subject_id, tier, vibe_tags, highlight, strengths, weaknesses,
		       similar_to, category, audience, score, analyzed_at, model_id
		FROM verdicts
		WHERE subject_id = $1
	`

	var (
		verdict    domain.Verdict
		vibeTags   []byte
		strengths  []byte
		weaknesses []byte
		similarTo  []byte
	)
	err := s.db.QueryRowContext(ctx, query, subjectID).Scan(
		&verdict.SubjectID,
		&verdict.Tier,
		&vibeTags,
		&verdict.Highlight,
		&strengths,
		&weaknesses,
		&similarTo,
		&verdict.Category,
		&verdict.Audience,
		&verdict.Score,
		&verdict.AnalyzedAt,
		&verdict.ModelID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get verdict: %w", MapError(err))
	}

	for _, pair := range []struct {
		raw  []byte
		dest *[]string
	}{
		{vibeTags, &verdict.VibeTags},
		{strengths, &verdict.Strengths},
		{weaknesses, &verdict.Weaknesses},
		{similarTo, &verdict.SimilarTo},
	} {
		if err := json.Unmarshal(pair.raw, pair.dest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal verdict list field: %w", err)
		}
	}

	return &verdict, nil
}

// SelectSubjectIDs returns subject IDs matching the reprocessing filter.
func (s *PostgresVerdictStore) SelectSubjectIDs(
	ctx context.Context,
	filter store.SubjectFilter,
) ([]uuid.UUID, error) {
	builder := psql.Select("s.id").From("subjects s")

	switch {
	case len(filter.IDs) > 0:
		builder = builder.Where(sq.Eq{"s.id": filter.IDs})
	case filter.MissingVerdict:
		builder = builder.
			LeftJoin("verdicts v ON v.subject_id = s.id").
			Where("v.subject_id IS NULL")
	case filter.AnalyzedBefore != nil:
		builder = builder.
			Join("verdicts v ON v.subject_id = s.id").
			Where(sq.Lt{"v.analyzed_at": *filter.AnalyzedBefore})
	case filter.ModelID != "":
		builder = builder.
			Join("verdicts v ON v.subject_id = s.id").
			Where(sq.Eq{"v.model_id": filter.ModelID})
	}

	query, args, err := builder.OrderBy("s.created_at ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build subject filter query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select subject IDs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subject ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subject IDs: %w", err)
	}

	return ids, nil
}

// marshalList encodes a string slice as JSONB, with nil normalized to [].
func marshalList(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verdict list field: %w", err)
	}
	return raw, nil
}
