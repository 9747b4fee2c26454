package orm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stokaro/tabula/dbschema"
)

// DB is the entry point of the mapper. It owns a single database connection,
// opened on first use and released by Close, and the schema registry shared by
// every Set and loader created from it.
type DB struct {
	state    *connState
	registry *Registry
	logger   *slog.Logger
}

type connState struct {
	mu   sync.Mutex
	url  string
	opts []dbschema.ConnectOption
	conn *dbschema.DatabaseConnection
}

// Open returns a DB for dbURL without connecting. The connection is
// established by the first operation that needs it.
func Open(dbURL string, opts ...dbschema.ConnectOption) *DB {
	return &DB{
		state:    &connState{url: dbURL, opts: opts},
		registry: NewRegistry(),
		logger:   slog.Default(),
	}
}

// New returns a DB over an already established connection. Close releases it.
func New(conn *dbschema.DatabaseConnection) *DB {
	return &DB{
		state:    &connState{conn: conn},
		registry: NewRegistry(),
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the DB. The returned DB shares the connection.
func (db *DB) WithLogger(l *slog.Logger) *DB {
	tmp := *db
	tmp.logger = l
	return &tmp
}

// Registry returns the schema cache of this DB.
func (db *DB) Registry() *Registry {
	return db.registry
}

// Conn returns the underlying connection, opening it if necessary.
func (db *DB) Conn(ctx context.Context) (*dbschema.DatabaseConnection, error) {
	s := db.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}
	if s.url == "" {
		return nil, fmt.Errorf("failed to open database: no connection URL configured")
	}

	conn, err := dbschema.ConnectToDatabaseContext(ctx, s.url, s.opts...)
	if err != nil {
		return nil, err
	}
	db.logger.Debug("Opened database connection", "dialect", conn.Dialect())
	s.conn = conn
	return conn, nil
}

// Close releases the connection. A later operation reopens it when the DB was
// created with Open.
func (db *DB) Close() error {
	s := db.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
