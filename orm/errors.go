package orm

import "errors"

// ErrNoPrimaryKey is returned by operations that address a single record when
// the entity type declares no primary key.
var ErrNoPrimaryKey = errors.New("entity has no primary key")

// ErrInvalidSchema is returned when an entity declaration is malformed.
var ErrInvalidSchema = errors.New("invalid entity schema")

// ErrDetached is returned by loaders that were never bound to a database.
var ErrDetached = errors.New("loader is not attached to a database")
