package orm

import (
	"context"
	"fmt"

	"github.com/stokaro/tabula/core/platform"
)

// Set is the repository of entity type T. It borrows the DB it was created
// from and keeps no state of its own, so instances are never tracked.
type Set[T any] struct {
	db *DB
}

// NewSet creates the repository of T on db.
func NewSet[T any](db *DB) *Set[T] {
	return &Set[T]{db: db}
}

// Schema returns the resolved schema of T.
func (s *Set[T]) Schema() (*Schema[T], error) {
	return SchemaFor[T](s.db.registry)
}

// All returns every stored record of T.
func (s *Set[T]) All(ctx context.Context) ([]*T, error) {
	sch, err := s.Schema()
	if err != nil {
		return nil, err
	}
	return load(ctx, s.db, sch, "")
}

// Find returns the record with the given primary key, or nil when there is
// none.
func (s *Set[T]) Find(ctx context.Context, key any) (*T, error) {
	sch, err := s.Schema()
	if err != nil {
		return nil, err
	}
	if err := sch.requirePrimaryKey(); err != nil {
		return nil, err
	}

	found, err := load(ctx, s.db, sch, sch.PrimaryKey.Column, key)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

// Add inserts inst. Integer primary keys are generated by the store and
// written back into inst; other keys are inserted as given.
func (s *Set[T]) Add(ctx context.Context, inst *T) error {
	sch, err := s.Schema()
	if err != nil {
		return err
	}
	if err := sch.requirePrimaryKey(); err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	dialect := conn.Dialect()
	generated := sch.PrimaryKey.Type.IsInteger()

	var (
		columns []string
		args    []any
	)
	for _, c := range sch.columns {
		if generated && c.field.PrimaryKey {
			continue
		}
		columns = append(columns, c.field.Column)
		args = append(args, c.value(inst))
	}

	var returning string
	if generated && platform.SupportsReturning(dialect) {
		returning = sch.PrimaryKey.Column
	}
	query := insertSQL(&sch.Metadata, dialect, columns, returning)
	s.db.logger.Debug("Executing insert", "entity", sch.EntityName, "sql", query)

	switch {
	case !generated:
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert %s: %w", sch.EntityName, err)
		}
	case returning != "":
		var key any
		if err := conn.QueryRowContext(ctx, query, args...).Scan(&key); err != nil {
			return fmt.Errorf("failed to insert %s: %w", sch.EntityName, err)
		}
		if err := sch.pk.set(inst, key); err != nil {
			return fmt.Errorf("failed to assign generated key of %s: %w", sch.EntityName, err)
		}
	default:
		res, err := conn.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to insert %s: %w", sch.EntityName, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read generated key of %s: %w", sch.EntityName, err)
		}
		if err := sch.pk.set(inst, id); err != nil {
			return fmt.Errorf("failed to assign generated key of %s: %w", sch.EntityName, err)
		}
	}

	attach(s.db, sch, inst)
	return nil
}

// Update writes every non-key column of inst to the record with inst's key.
// A missing record is not an error.
func (s *Set[T]) Update(ctx context.Context, inst *T) error {
	sch, err := s.Schema()
	if err != nil {
		return err
	}
	if err := sch.requirePrimaryKey(); err != nil {
		return err
	}

	var (
		columns []string
		args    []any
	)
	for _, c := range sch.columns {
		if c.field.PrimaryKey {
			continue
		}
		columns = append(columns, c.field.Column)
		args = append(args, c.value(inst))
	}
	if len(columns) == 0 {
		return nil
	}
	args = append(args, sch.pk.value(inst))

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}

	query := updateSQL(&sch.Metadata, conn.Dialect(), columns)
	s.db.logger.Debug("Executing update", "entity", sch.EntityName, "sql", query)

	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update %s: %w", sch.EntityName, err)
	}
	return nil
}

// Delete removes the record with inst's key.
func (s *Set[T]) Delete(ctx context.Context, inst *T) error {
	sch, err := s.Schema()
	if err != nil {
		return err
	}
	key, err := sch.KeyOf(inst)
	if err != nil {
		return err
	}
	return s.DeleteByKey(ctx, key)
}

// DeleteByKey removes the record with the given key. Deleting a record that
// does not exist succeeds.
func (s *Set[T]) DeleteByKey(ctx context.Context, key any) error {
	sch, err := s.Schema()
	if err != nil {
		return err
	}
	if err := sch.requirePrimaryKey(); err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}

	query := deleteSQL(&sch.Metadata, conn.Dialect())
	s.db.logger.Debug("Executing delete", "entity", sch.EntityName, "sql", query)

	if _, err := conn.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", sch.EntityName, err)
	}
	return nil
}
