package postgres

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sqlx.DB and *sqlx.Tx, so repositories run the
// same against a live connection or a test transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}
