package orm

import (
	"context"
	"fmt"
	"strings"

	"github.com/stokaro/tabula/core/platform"
)

// Attacher may be implemented by entity types that bind loaders beyond the
// ones declared with HasOne and HasMany. It is called on every instance the
// mapper materialises or inserts, after the declared relations are bound.
type Attacher interface {
	AttachLoaders(db *DB)
}

func attach[T any](db *DB, s *Schema[T], inst *T) {
	for _, r := range s.relations {
		r.bind(db, s, inst)
	}
	if a, ok := any(inst).(Attacher); ok {
		a.AttachLoaders(db)
	}
}

func selectSQL(meta *Metadata, dialect, whereColumn string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(meta.Columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(meta.Table)
	if whereColumn != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(whereColumn)
		sb.WriteString(" = ")
		sb.WriteString(platform.Placeholder(dialect, 1))
	}
	return sb.String()
}

func insertSQL(meta *Metadata, dialect string, columns []string, returning string) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(meta.Table)

	switch {
	case len(columns) > 0:
		placeholders := make([]string, len(columns))
		for i := range columns {
			placeholders[i] = platform.Placeholder(dialect, i+1)
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(columns, ", "))
		sb.WriteString(") VALUES (")
		sb.WriteString(strings.Join(placeholders, ", "))
		sb.WriteString(")")
	case platform.IsMySQLLike(dialect):
		sb.WriteString(" () VALUES ()")
	default:
		sb.WriteString(" DEFAULT VALUES")
	}

	if returning != "" {
		sb.WriteString(" RETURNING ")
		sb.WriteString(returning)
	}
	return sb.String()
}

func updateSQL(meta *Metadata, dialect string, columns []string) string {
	assignments := make([]string, len(columns))
	for i, col := range columns {
		assignments[i] = col + " = " + platform.Placeholder(dialect, i+1)
	}
	return "UPDATE " + meta.Table + " SET " + strings.Join(assignments, ", ") +
		" WHERE " + meta.PrimaryKey.Column + " = " + platform.Placeholder(dialect, len(columns)+1)
}

func deleteSQL(meta *Metadata, dialect string) string {
	return "DELETE FROM " + meta.Table + " WHERE " + meta.PrimaryKey.Column + " = " + platform.Placeholder(dialect, 1)
}

// load runs a full-table select, or an equality select when whereColumn is
// set, and materialises every row with its loaders bound.
func load[T any](ctx context.Context, db *DB, s *Schema[T], whereColumn string, args ...any) ([]*T, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	query := selectSQL(&s.Metadata, conn.Dialect(), whereColumn)
	db.logger.Debug("Executing query", "entity", s.EntityName, "sql", query)

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.Table, err)
	}
	defer rows.Close()

	result := []*T{}
	for rows.Next() {
		inst := new(T)
		dest, commit := s.scanTargets(inst)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", s.Table, err)
		}
		commit()
		result = append(result, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", s.Table, err)
	}
	// release the connection before handing instances to attach hooks
	_ = rows.Close()

	for _, inst := range result {
		attach(db, s, inst)
	}
	return result, nil
}
