package orm

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/stokaro/tabula/core/typemap"
)

// FieldKind tells data columns apart from relationship fields.
type FieldKind int

const (
	DataColumn FieldKind = iota
	ToOneRelation
	ToManyRelation
)

func (k FieldKind) String() string {
	switch k {
	case DataColumn:
		return "column"
	case ToOneRelation:
		return "has-one"
	case ToManyRelation:
		return "has-many"
	default:
		return "unknown"
	}
}

// Field describes one declared field of an entity.
type Field struct {
	Name       string
	Kind       FieldKind
	Column     string       // storage column, empty for relationships
	Type       typemap.Type // storage type, meaningful for data columns only
	PrimaryKey bool

	// References is the entity a data column points at, if it is a foreign key.
	References *Entity

	// Target and Via describe a relationship. For a has-one relation Via is a
	// column of the owner holding the target's key; for a has-many relation it
	// is the column of the target that holds the owner's key.
	Target *Entity
	Via    string
}

// ForeignKey is a data column that references another entity's primary key.
type ForeignKey struct {
	Column string
	Target Entity
}

// Metadata is the resolved storage description of an entity type.
type Metadata struct {
	EntityName  string
	Table       string
	Fields      []Field
	Columns     []string // data columns in declaration order
	PrimaryKey  *Field
	ForeignKeys []ForeignKey
}

// Column returns the data column with the given storage name.
func (m *Metadata) Column(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Kind == DataColumn && f.Column == name {
			return f, true
		}
	}
	return Field{}, false
}

func (m *Metadata) requirePrimaryKey() error {
	if m.PrimaryKey == nil {
		return fmt.Errorf("%w: %s", ErrNoPrimaryKey, m.EntityName)
	}
	return nil
}

// Entity is a type-erased handle to a declared entity type. It is used where
// entity types are referenced without knowing them statically: foreign key
// targets and model lists handed to the schema generator.
type Entity struct {
	typ     reflect.Type
	resolve func(*Registry) (*Metadata, error)
}

// EntityOf returns the handle of entity type T. Resolution is deferred until
// metadata is requested, so entity types may reference each other.
func EntityOf[T any]() Entity {
	return Entity{
		typ: reflect.TypeFor[T](),
		resolve: func(r *Registry) (*Metadata, error) {
			s, err := SchemaFor[T](r)
			if err != nil {
				return nil, err
			}
			return &s.Metadata, nil
		},
	}
}

// Name returns the Go type name of the entity.
func (e Entity) Name() string {
	if e.typ == nil {
		return ""
	}
	return e.typ.Name()
}

// Type returns the Go type of the entity.
func (e Entity) Type() reflect.Type {
	return e.typ
}

// Metadata resolves the entity through r. A nil registry resolves without caching.
func (e Entity) Metadata(r *Registry) (*Metadata, error) {
	if e.resolve == nil {
		return nil, fmt.Errorf("%w: zero entity handle", ErrInvalidSchema)
	}
	if r == nil {
		r = NewRegistry()
	}
	return e.resolve(r)
}

// Registry caches resolved schemas per entity type. It is safe for
// concurrent use and entries are never evicted.
type Registry struct {
	schemas sync.Map // reflect.Type -> *Schema[T]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Metadata resolves e through the registry cache.
func (r *Registry) Metadata(e Entity) (*Metadata, error) {
	return e.Metadata(r)
}

// SchemaFor returns the cached schema of T, resolving it on first use.
func SchemaFor[T any](r *Registry) (*Schema[T], error) {
	key := reflect.TypeFor[T]()
	if v, ok := r.schemas.Load(key); ok {
		return v.(*Schema[T]), nil
	}

	s, err := Resolve[T]()
	if err != nil {
		return nil, err
	}

	v, _ := r.schemas.LoadOrStore(key, s)
	return v.(*Schema[T]), nil
}

// Resolve builds the schema of T from its declaration. It does not touch any
// cache and always produces an equivalent result for the same type.
func Resolve[T any]() (*Schema[T], error) {
	d, ok := any(new(T)).(Declarer[T])
	if !ok {
		return nil, fmt.Errorf("%w: %s does not declare a schema", ErrInvalidSchema, reflect.TypeFor[T]().Name())
	}

	b := newBuilder[T]()
	d.DeclareSchema(b)
	return b.build()
}

// Schema is the resolved metadata of T together with the accessors used to
// move values between instances and the store.
type Schema[T any] struct {
	Metadata

	columns   []columnAccess[T] // parallel to Metadata.Columns
	pk        *columnAccess[T]
	relations []relationDecl[T]
}

func (s *Schema[T]) column(name string) *columnAccess[T] {
	for i := range s.columns {
		if s.columns[i].field.Column == name {
			return &s.columns[i]
		}
	}
	return nil
}

// scanTargets returns one scan destination per data column and a function
// that copies the scanned values into inst.
func (s *Schema[T]) scanTargets(inst *T) ([]any, func()) {
	dest := make([]any, len(s.columns))
	commits := make([]func(), len(s.columns))
	for i, c := range s.columns {
		dest[i], commits[i] = c.scan(inst)
	}
	return dest, func() {
		for _, commit := range commits {
			commit()
		}
	}
}

// KeyOf returns the primary key value of inst.
func (s *Schema[T]) KeyOf(inst *T) (any, error) {
	if err := s.requirePrimaryKey(); err != nil {
		return nil, err
	}
	return s.pk.value(inst), nil
}
