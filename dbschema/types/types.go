package types

import (
	"context"
	"database/sql"
)

// DBInfo contains connection and metadata information
type DBInfo struct {
	Dialect string `json:"dialect"` // postgres, mysql, mariadb, sqlite
	Driver  string `json:"driver"`  // database/sql driver name the connection was opened with
	URL     string `json:"url"`     // database connection URL (for reference)
}

// Executor runs statements against a database. It is satisfied by *sql.DB,
// *sql.Tx, *sql.Conn and the dbschema connection itself, which lets the same
// migration and repository code run inside and outside a transaction.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
