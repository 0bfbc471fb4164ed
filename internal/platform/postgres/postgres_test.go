package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/showhn-judge/internal/domain"
	"github.com/phrazzld/showhn-judge/migrations"
)

// newTestDB opens the database named by DATABASE_URL, migrates it, and
// truncates all pipeline tables. Tests are skipped when no database is
// configured so the unit suite stays runnable anywhere.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping database-backed test")
	}

	db, err := sql.Open("pgx", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.FS)
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, "."))

	_, err = db.Exec(`TRUNCATE tasks, verdicts, subjects CASCADE`)
	require.NoError(t, err)

	return db
}

// createTestSubject inserts a minimal subject row and returns it.
func createTestSubject(t *testing.T, db *sql.DB, title string) *domain.Subject {
	t.Helper()

	subject, err := domain.NewSubject(title, "https://example.com/"+title)
	require.NoError(t, err)

	subjects := NewPostgresSubjectStore(db)
	require.NoError(t, subjects.Create(context.Background(), subject))

	return subject
}
