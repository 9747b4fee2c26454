// Package schemagen renders CREATE TABLE statements from entity metadata and
// orders them so that referenced tables are created before the tables that
// point at them.
package schemagen

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/stokaro/tabula/core/typemap"
	"github.com/stokaro/tabula/dbschema/types"
	"github.com/stokaro/tabula/orm"
)

// CreateTableSQL renders the CREATE TABLE IF NOT EXISTS statement of one entity.
//
// Every data column is emitted with the storage type mapped for the dialect.
// An integer primary key becomes the dialect's auto-increment type, any other
// primary key keeps its mapped type. Each foreign key whose target declares a
// primary key adds a FOREIGN KEY clause after the columns; foreign keys to
// targets without one are skipped.
func CreateTableSQL(meta *orm.Metadata, reg *orm.Registry, dialect string) (string, error) {
	defs := make([]string, 0, len(meta.Columns)+len(meta.ForeignKeys))
	for _, f := range meta.Fields {
		if f.Kind != orm.DataColumn {
			continue
		}
		defs = append(defs, "    "+columnDef(f, dialect))
	}

	for _, fk := range meta.ForeignKeys {
		target, err := fk.Target.Metadata(reg)
		if err != nil {
			return "", fmt.Errorf("failed to resolve foreign key target of %s.%s: %w", meta.Table, fk.Column, err)
		}
		if target.PrimaryKey == nil {
			continue
		}
		defs = append(defs, fmt.Sprintf("    FOREIGN KEY (%s) REFERENCES %s(%s)", fk.Column, target.Table, target.PrimaryKey.Column))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n", meta.Table)
	sb.WriteString(strings.Join(defs, ",\n"))
	sb.WriteString("\n);")
	return sb.String(), nil
}

func columnDef(f orm.Field, dialect string) string {
	if !f.PrimaryKey {
		return f.Column + " " + typemap.SQLType(f.Type, dialect)
	}
	if serial, ok := typemap.Serial(f.Type, dialect); ok {
		return f.Column + " " + serial + " PRIMARY KEY"
	}
	return f.Column + " " + typemap.SQLType(f.Type, dialect) + " PRIMARY KEY"
}

// DropTableSQL renders the statement that reverts CreateTableSQL for table.
func DropTableSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", table)
}

type node struct {
	entity orm.Entity
	meta   *orm.Metadata
	deps   []reflect.Type // foreign key targets inside the model set, declaration order
}

// graph resolves every model and keeps, per model, the foreign key targets
// that are part of the same model set. Duplicate models are collapsed.
func graph(models []orm.Entity, reg *orm.Registry) ([]reflect.Type, map[reflect.Type]*node, error) {
	order := make([]reflect.Type, 0, len(models))
	nodes := make(map[reflect.Type]*node, len(models))
	for _, e := range models {
		if _, ok := nodes[e.Type()]; ok {
			continue
		}
		meta, err := e.Metadata(reg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve %s: %w", e.Name(), err)
		}
		nodes[e.Type()] = &node{entity: e, meta: meta}
		order = append(order, e.Type())
	}

	for _, typ := range order {
		n := nodes[typ]
		for _, fk := range n.meta.ForeignKeys {
			target := fk.Target.Type()
			if target == typ {
				continue // self references do not constrain creation order
			}
			if _, ok := nodes[target]; ok {
				n.deps = append(n.deps, target)
			}
		}
	}
	return order, nodes, nil
}

// SortByDependencies orders models so that every model comes after the
// models its foreign keys reference.
//
// The order is produced by a depth-first traversal with a visited set, in
// the order the models are given. Targets that are not in models are ignored.
// Cycles do not stop the traversal: a model already on the current path is
// treated as visited, so a cycle yields traversal order for its members. Use
// FindCycles to detect that case.
func SortByDependencies(models []orm.Entity, reg *orm.Registry) ([]*orm.Metadata, error) {
	order, nodes, err := graph(models, reg)
	if err != nil {
		return nil, err
	}

	sorted := make([]*orm.Metadata, 0, len(order))
	visited := make(map[reflect.Type]bool, len(order))

	var visit func(reflect.Type)
	visit = func(typ reflect.Type) {
		if visited[typ] {
			return
		}
		visited[typ] = true
		for _, dep := range nodes[typ].deps {
			visit(dep)
		}
		sorted = append(sorted, nodes[typ].meta)
	}

	for _, typ := range order {
		visit(typ)
	}
	return sorted, nil
}

// FindCycles returns the foreign key cycles among models, each as the list of
// entity names along the cycle. Self references are not reported.
func FindCycles(models []orm.Entity, reg *orm.Registry) ([][]string, error) {
	order, nodes, err := graph(models, reg)
	if err != nil {
		return nil, err
	}

	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[reflect.Type]int, len(order))
	var (
		path   []reflect.Type
		cycles [][]string
	)

	var visit func(reflect.Type)
	visit = func(typ reflect.Type) {
		state[typ] = onPath
		path = append(path, typ)
		for _, dep := range nodes[typ].deps {
			switch state[dep] {
			case unvisited:
				visit(dep)
			case onPath:
				var cycle []string
				for i := len(path) - 1; i >= 0; i-- {
					if path[i] == dep {
						for _, t := range path[i:] {
							cycle = append(cycle, nodes[t].entity.Name())
						}
						break
					}
				}
				cycles = append(cycles, cycle)
			}
		}
		path = path[:len(path)-1]
		state[typ] = done
	}

	for _, typ := range order {
		if state[typ] == unvisited {
			visit(typ)
		}
	}
	return cycles, nil
}

// Generator produces and applies the CREATE TABLE statements of a model set.
type Generator struct {
	dialect  string
	registry *orm.Registry
	logger   *slog.Logger
}

// NewGenerator creates a generator rendering SQL for the given dialect.
func NewGenerator(dialect string) *Generator {
	return &Generator{
		dialect:  dialect,
		registry: orm.NewRegistry(),
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the generator
func (g *Generator) WithLogger(l *slog.Logger) *Generator {
	tmp := *g
	tmp.logger = l
	return &tmp
}

// WithRegistry resolves metadata through r, typically the registry of an orm.DB.
func (g *Generator) WithRegistry(r *orm.Registry) *Generator {
	tmp := *g
	tmp.registry = r
	return &tmp
}

// Table is the CREATE TABLE statement of one entity.
type Table struct {
	Entity string
	Name   string
	SQL    string
}

// Tables renders one statement per model in dependency order. Foreign key
// cycles are logged as warnings and the tables are still returned.
func (g *Generator) Tables(models []orm.Entity) ([]Table, error) {
	cycles, err := FindCycles(models, g.registry)
	if err != nil {
		return nil, err
	}
	for _, cycle := range cycles {
		g.logger.Warn("Circular foreign key dependency, creation order may violate constraints",
			"entities", strings.Join(cycle, " -> "))
	}

	sorted, err := SortByDependencies(models, g.registry)
	if err != nil {
		return nil, err
	}

	tables := make([]Table, 0, len(sorted))
	for _, meta := range sorted {
		sql, err := CreateTableSQL(meta, g.registry, g.dialect)
		if err != nil {
			return nil, err
		}
		tables = append(tables, Table{Entity: meta.EntityName, Name: meta.Table, SQL: sql})
	}
	return tables, nil
}

// Statements returns the CREATE TABLE statements of models in dependency order.
func (g *Generator) Statements(models []orm.Entity) ([]string, error) {
	tables, err := g.Tables(models)
	if err != nil {
		return nil, err
	}
	statements := make([]string, len(tables))
	for i, t := range tables {
		statements[i] = t.SQL
	}
	return statements, nil
}

// Apply creates the tables of models through exec in dependency order. Each
// statement is executed on its own; a failure stops the run and leaves the
// tables created so far in place.
func (g *Generator) Apply(ctx context.Context, exec types.Executor, models []orm.Entity) error {
	if len(models) == 0 {
		g.logger.Warn("No models to create tables for")
		return nil
	}

	tables, err := g.Tables(models)
	if err != nil {
		return err
	}

	for _, t := range tables {
		g.logger.Info("Creating table", "entity", t.Entity, "table", t.Name)
		g.logger.Debug("Create table statement", "sql", t.SQL)
		if _, err := exec.ExecContext(ctx, t.SQL); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
		g.logger.Info("Created table", "table", t.Name)
	}
	return nil
}
