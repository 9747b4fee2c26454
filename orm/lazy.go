package orm

import (
	"context"
	"fmt"
	"reflect"
)

// Lazy defers loading of a single related record until Value is called. The
// first successful load is kept for the lifetime of the loader and never
// refreshed. A Lazy is not safe for concurrent use.
type Lazy[T any] struct {
	db     *DB
	key    any
	loaded bool
	value  *T
}

// NewLazy creates a loader for the T whose primary key equals key.
func NewLazy[T any](db *DB, key any) *Lazy[T] {
	return &Lazy[T]{db: db, key: key}
}

// Loaded reports whether the related record has been loaded.
func (l *Lazy[T]) Loaded() bool {
	return l != nil && l.loaded
}

// Value returns the related record, loading it on first call. A NULL key, a
// missing record or a target without a primary key all yield nil. Load
// failures are returned and the next call retries.
func (l *Lazy[T]) Value(ctx context.Context) (*T, error) {
	if l == nil || l.db == nil {
		return nil, ErrDetached
	}
	if l.loaded {
		return l.value, nil
	}

	s, err := SchemaFor[T](l.db.registry)
	if err != nil {
		return nil, err
	}

	var value *T
	if s.PrimaryKey != nil && !isNull(l.key) {
		found, err := load(ctx, l.db, s, s.PrimaryKey.Column, l.key)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", s.EntityName, err)
		}
		if len(found) > 0 {
			value = found[0]
		}
	}

	l.value = value
	l.loaded = true
	return value, nil
}

// LazyCollection defers loading of the records related through a filter
// column until Items is called. The loaded slice is kept for the lifetime of
// the collection. A LazyCollection is not safe for concurrent use.
type LazyCollection[T any] struct {
	db     *DB
	column string
	value  any
	loaded bool
	items  []*T
}

// NewLazyCollection creates a loader for every T whose column equals value.
func NewLazyCollection[T any](db *DB, column string, value any) *LazyCollection[T] {
	return &LazyCollection[T]{db: db, column: column, value: value}
}

// Loaded reports whether the collection has been loaded.
func (c *LazyCollection[T]) Loaded() bool {
	return c != nil && c.loaded
}

// Items returns the related records, loading them on first call. An empty
// result is a non-nil empty slice. Load failures are returned and the next
// call retries.
func (c *LazyCollection[T]) Items(ctx context.Context) ([]*T, error) {
	if c == nil || c.db == nil {
		return nil, ErrDetached
	}
	if c.loaded {
		return c.items, nil
	}

	s, err := SchemaFor[T](c.db.registry)
	if err != nil {
		return nil, err
	}
	if _, ok := s.Column(c.column); !ok {
		return nil, fmt.Errorf("%w: %s has no column %q", ErrInvalidSchema, s.EntityName, c.column)
	}

	items, err := load(ctx, c.db, s, c.column, c.value)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s collection: %w", s.EntityName, err)
	}

	c.items = items
	c.loaded = true
	return items, nil
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
