package migrator

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/stokaro/tabula/core/sqlutil"
	"github.com/stokaro/tabula/dbschema/types"
)

// MigrationFunc applies one direction of a migration. It receives the
// transaction the migration runs in and must not use any other handle.
// Executors that report their SQL dialect, such as the one the Migrator passes
// and *dbschema.DatabaseConnection, get their scripts split by that dialect's
// string literal rules.
type MigrationFunc func(context.Context, types.Executor) error

// Tx is the transaction a Migrator hands to migration functions.
type Tx struct {
	*sql.Tx
	dialect string
}

// Dialect returns the dialect of the connection the transaction belongs to.
func (tx *Tx) Dialect() string {
	return tx.dialect
}

// SplitSQLStatements splits a migration script into individual statements.
// Drivers differ in whether they accept several statements per call, so scripts
// are always executed one statement at a time. An empty dialect reads string
// literals the standard SQL way, with backslashes taken literally.
func SplitSQLStatements(sql, dialect string) []string {
	opts := []sqlutil.Option{sqlutil.WithDialect(dialect)}
	return sqlutil.SplitSQLStatements(sqlutil.StripComments(sql, opts...), opts...)
}

// MigrationFuncFromSQLFilename returns a migration function that reads SQL from a file
// in the provided filesystem and executes it statement by statement
func MigrationFuncFromSQLFilename(filename string, fsys fs.FS) MigrationFunc {
	return func(ctx context.Context, exec types.Executor) error {
		sql, err := fs.ReadFile(fsys, filename)
		if err != nil {
			return fmt.Errorf("failed to read migration file: %w", err)
		}
		return executeSQLStatements(ctx, exec, string(sql))
	}
}

// NoopMigrationFunc is a no-op migration function
func NoopMigrationFunc(_ context.Context, _ types.Executor) error {
	return nil
}

// Migration is one versioned schema change. Versions are compared as plain
// strings, so they should share a common width (e.g. "001", "002").
type Migration struct {
	Version     string
	Description string
	Up          MigrationFunc
	Down        MigrationFunc
}

// CreateMigrationFromSQL creates a migration from SQL strings
// This is useful for programmatically creating migrations
func CreateMigrationFromSQL(version, description, upSQL, downSQL string) *Migration {
	return &Migration{
		Version:     version,
		Description: description,
		Up: func(ctx context.Context, exec types.Executor) error {
			return executeSQLStatements(ctx, exec, upSQL)
		},
		Down: func(ctx context.Context, exec types.Executor) error {
			return executeSQLStatements(ctx, exec, downSQL)
		},
	}
}

func executeSQLStatements(ctx context.Context, exec types.Executor, sql string) error {
	var dialect string
	if d, ok := exec.(interface{ Dialect() string }); ok {
		dialect = d.Dialect()
	}

	for _, stmt := range SplitSQLStatements(sql, dialect) {
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute SQL statement: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
