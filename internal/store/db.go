package store

import (
	"context"
	"database/sql"
)

// DBTX is the database surface the stores run their queries against.
// Both *sql.DB and *sql.Tx satisfy it, so a store can be handed either a
// pooled connection or an in-flight transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
