package orm

import (
	"database/sql"
	"fmt"
	"reflect"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/stokaro/tabula/core/typemap"
)

// Declarer is implemented by entity types. DeclareSchema is called on a zero
// value and must only describe the type through the builder.
//
//	func (Doctor) DeclareSchema(b *orm.Builder[Doctor]) {
//		b.Table("doctors")
//		orm.Column(b, "ID", func(d *Doctor) *int { return &d.ID }).PrimaryKey()
//		orm.Column(b, "FirstName", func(d *Doctor) *string { return &d.FirstName }).Named("first_name")
//	}
type Declarer[T any] interface {
	DeclareSchema(b *Builder[T])
}

// Builder collects the declaration of entity type T.
type Builder[T any] struct {
	table     string
	fields    []*Field
	columns   []columnAccess[T]
	relations []relationDecl[T]
}

func newBuilder[T any]() *Builder[T] {
	return &Builder[T]{}
}

// Table sets the table name. It defaults to the lowercased type name.
func (b *Builder[T]) Table(name string) *Builder[T] {
	b.table = name
	return b
}

type columnAccess[T any] struct {
	field *Field
	value func(*T) any
	scan  func(*T) (any, func())
	set   func(*T, any) error
}

type relationDecl[T any] struct {
	field *Field
	bind  func(db *DB, s *Schema[T], inst *T)
}

// ColumnBuilder refines a data column declaration.
type ColumnBuilder struct {
	field *Field
}

// Column declares a data column backed by the struct field returned by field.
// The storage type is derived from V and the column name defaults to the
// lowercased logical name.
func Column[T, V any](b *Builder[T], name string, field func(*T) *V) *ColumnBuilder {
	f := &Field{Name: name, Kind: DataColumn, Type: typemap.OfType[V]()}
	b.fields = append(b.fields, f)
	b.columns = append(b.columns, columnAccess[T]{
		field: f,
		value: func(inst *T) any {
			return *field(inst)
		},
		scan: func(inst *T) (any, func()) {
			var n sql.Null[V]
			// NULL leaves the zero value in place
			return &n, func() { *field(inst) = n.V }
		},
		set: func(inst *T, src any) error {
			var n sql.Null[V]
			if err := n.Scan(src); err != nil {
				return err
			}
			*field(inst) = n.V
			return nil
		},
	})
	return &ColumnBuilder{field: f}
}

// Named overrides the column name.
func (c *ColumnBuilder) Named(column string) *ColumnBuilder {
	c.field.Column = column
	return c
}

// PrimaryKey marks the column as the entity's primary key. Integer keys are
// generated by the store on insert.
func (c *ColumnBuilder) PrimaryKey() *ColumnBuilder {
	c.field.PrimaryKey = true
	return c
}

// References marks the column as a foreign key to target's primary key.
func (c *ColumnBuilder) References(target Entity) *ColumnBuilder {
	c.field.References = &target
	return c
}

// Type overrides the storage type derived from the Go type.
func (c *ColumnBuilder) Type(t typemap.Type) *ColumnBuilder {
	c.field.Type = t
	return c
}

// HasOne declares a to-one relationship. The owner's fkColumn holds the key of
// the related U; set receives the loader bound to that key.
func HasOne[T, U any](b *Builder[T], name string, set func(*T, *Lazy[U]), fkColumn string) {
	target := EntityOf[U]()
	f := &Field{Name: name, Kind: ToOneRelation, Target: &target, Via: fkColumn}
	b.fields = append(b.fields, f)
	b.relations = append(b.relations, relationDecl[T]{
		field: f,
		bind: func(db *DB, s *Schema[T], inst *T) {
			set(inst, NewLazy[U](db, s.column(fkColumn).value(inst)))
		},
	})
}

// HasMany declares a to-many relationship. Related U records are those whose
// filterColumn equals the owner's primary key.
func HasMany[T, U any](b *Builder[T], name string, set func(*T, *LazyCollection[U]), filterColumn string) {
	target := EntityOf[U]()
	f := &Field{Name: name, Kind: ToManyRelation, Target: &target, Via: filterColumn}
	b.fields = append(b.fields, f)
	b.relations = append(b.relations, relationDecl[T]{
		field: f,
		bind: func(db *DB, s *Schema[T], inst *T) {
			set(inst, NewLazyCollection[U](db, filterColumn, s.pk.value(inst)))
		},
	})
}

func (b *Builder[T]) build() (*Schema[T], error) {
	name := reflect.TypeFor[T]().Name()
	lower := cases.Lower(language.Und) // a Caser must not be shared between goroutines

	s := &Schema[T]{
		Metadata: Metadata{
			EntityName: name,
			Table:      b.table,
		},
		columns:   b.columns,
		relations: b.relations,
	}
	if s.Table == "" {
		s.Table = lower.String(name)
	}

	if len(s.columns) == 0 {
		return nil, fmt.Errorf("%w: %s declares no columns", ErrInvalidSchema, name)
	}

	seen := make(map[string]bool, len(b.columns))
	for i := range s.columns {
		f := s.columns[i].field
		if f.Name == "" {
			return nil, fmt.Errorf("%w: %s declares a column without a name", ErrInvalidSchema, name)
		}
		if f.Column == "" {
			f.Column = lower.String(f.Name)
		}
		if seen[f.Column] {
			return nil, fmt.Errorf("%w: %s declares column %q twice", ErrInvalidSchema, name, f.Column)
		}
		seen[f.Column] = true

		if f.PrimaryKey {
			if s.pk != nil {
				return nil, fmt.Errorf("%w: %s declares more than one primary key (%s, %s)",
					ErrInvalidSchema, name, s.pk.field.Name, f.Name)
			}
			s.pk = &s.columns[i]
		}

		s.Columns = append(s.Columns, f.Column)
		if f.References != nil {
			s.ForeignKeys = append(s.ForeignKeys, ForeignKey{Column: f.Column, Target: *f.References})
		}
	}

	for _, r := range s.relations {
		switch r.field.Kind {
		case ToOneRelation:
			if !seen[r.field.Via] {
				return nil, fmt.Errorf("%w: %s relation %s refers to unknown column %q",
					ErrInvalidSchema, name, r.field.Name, r.field.Via)
			}
		case ToManyRelation:
			if s.pk == nil {
				return nil, fmt.Errorf("%w: %s relation %s: %w", ErrInvalidSchema, name, r.field.Name, ErrNoPrimaryKey)
			}
		}
	}

	for _, f := range b.fields {
		s.Fields = append(s.Fields, *f)
	}
	if s.pk != nil {
		for i := range s.Fields {
			if s.Fields[i].Kind == DataColumn && s.Fields[i].PrimaryKey {
				s.PrimaryKey = &s.Fields[i]
				break
			}
		}
	}

	return s, nil
}
