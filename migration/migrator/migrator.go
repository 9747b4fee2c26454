package migrator

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/stokaro/tabula/core/platform"
	"github.com/stokaro/tabula/dbschema"
)

// DefaultTableName is the table recording applied migrations.
const DefaultTableName = "__migration_history"

// AppliedMigration is a row of the applied-migration table.
type AppliedMigration struct {
	Version     string    `json:"version"`
	Description string    `json:"description"`
	AppliedAt   time.Time `json:"applied_at"`
}

// MigrationState is the status of one known migration.
type MigrationState struct {
	Version     string     `json:"version"`
	Description string     `json:"description"`
	Applied     bool       `json:"applied"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
}

func (s MigrationState) String() string {
	status := "[Pending]"
	if s.Applied {
		status = "[Applied]"
	}
	return fmt.Sprintf("%s %s: %s", status, s.Version, s.Description)
}

// MigrationStatus represents the current state of migrations
type MigrationStatus struct {
	CurrentVersion    string           `json:"current_version"`
	PendingMigrations []string         `json:"pending_migrations"`
	TotalMigrations   int              `json:"total_migrations"`
	HasPendingChanges bool             `json:"has_pending_changes"`
	Migrations        []MigrationState `json:"migrations"`
}

// Migrator applies and reverts migrations. The applied-migration table is the
// only record of schema state; every migration runs in its own transaction
// together with the change to that table.
type Migrator struct {
	conn              *dbschema.DatabaseConnection
	migrationProvider MigrationProvider
	table             string
	initialized       bool
	logger            *slog.Logger
}

// NewFSMigrator creates a new migrator that loads migrations from a filesystem.
// See NewFSMigrationProvider for the naming convention.
func NewFSMigrator(conn *dbschema.DatabaseConnection, fsys fs.FS) (*Migrator, error) {
	provider, err := NewFSMigrationProvider(fsys)
	if err != nil {
		return nil, err
	}
	return NewMigrator(conn, provider), nil
}

// NewMigrator creates a new migrator with the given database connection
func NewMigrator(conn *dbschema.DatabaseConnection, provider MigrationProvider) *Migrator {
	return &Migrator{
		conn:              conn,
		migrationProvider: provider,
		table:             DefaultTableName,
		logger:            slog.Default(),
	}
}

// WithLogger sets the logger for the migrator
func (m *Migrator) WithLogger(l *slog.Logger) *Migrator {
	tmp := *m
	tmp.logger = l
	return &tmp
}

// WithTable sets the name of the applied-migration table.
func (m *Migrator) WithTable(name string) *Migrator {
	tmp := *m
	tmp.table = name
	tmp.initialized = false
	return &tmp
}

// MigrationProvider returns the migration provider
func (m *Migrator) MigrationProvider() MigrationProvider {
	return m.migrationProvider
}

// Initialize creates the applied-migration table if it doesn't exist
func (m *Migrator) Initialize(ctx context.Context) error {
	if m.initialized {
		return nil
	}

	if _, err := m.conn.ExecContext(ctx, m.schemaSQL()); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	m.initialized = true
	return nil
}

// GetAppliedMigrations returns the applied migrations ordered by version
func (m *Migrator) GetAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}

	rows, err := m.conn.QueryContext(ctx, fmt.Sprintf("SELECT version, description, applied_at FROM %s ORDER BY version", m.table))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			rec         AppliedMigration
			description *string
			appliedAt   any
		)
		if err := rows.Scan(&rec.Version, &description, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		if description != nil {
			rec.Description = *description
		}
		rec.AppliedAt, _ = parseAppliedAt(appliedAt)
		applied = append(applied, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration rows: %w", err)
	}

	// the store's collation may differ from byte order
	sort.Slice(applied, func(i, j int) bool {
		return applied[i].Version < applied[j].Version
	})
	return applied, nil
}

// GetCurrentVersion returns the highest applied version, or "" when nothing
// has been applied.
func (m *Migrator) GetCurrentVersion(ctx context.Context) (string, error) {
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "", nil
	}
	return applied[len(applied)-1].Version, nil
}

// GetPendingMigrations returns the known migrations that are not applied, in
// ascending version order
func (m *Migrator) GetPendingMigrations(ctx context.Context) ([]*Migration, error) {
	applied, err := m.appliedSet(ctx)
	if err != nil {
		return nil, err
	}

	var pending []*Migration
	for _, migration := range m.migrations() {
		if _, ok := applied[migration.Version]; !ok {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

// GetMigrationStatus reports every known migration as applied or pending.
// It does not modify the database apart from creating the applied-migration
// table when missing.
func (m *Migrator) GetMigrationStatus(ctx context.Context) (*MigrationStatus, error) {
	appliedList, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	applied := make(map[string]AppliedMigration, len(appliedList))
	for _, rec := range appliedList {
		applied[rec.Version] = rec
	}

	migrations := m.migrations()
	status := &MigrationStatus{
		PendingMigrations: []string{},
		TotalMigrations:   len(migrations),
		Migrations:        make([]MigrationState, 0, len(migrations)),
	}

	for _, migration := range migrations {
		state := MigrationState{Version: migration.Version, Description: migration.Description}
		if rec, ok := applied[migration.Version]; ok {
			state.Applied = true
			if !rec.AppliedAt.IsZero() {
				at := rec.AppliedAt
				state.AppliedAt = &at
			}
			status.CurrentVersion = migration.Version
		} else {
			status.PendingMigrations = append(status.PendingMigrations, migration.Version)
		}
		status.Migrations = append(status.Migrations, state)
	}
	status.HasPendingChanges = len(status.PendingMigrations) > 0

	return status, nil
}

// MigrateUp applies every pending migration in ascending version order. The
// first failure rolls back that migration and stops; migrations applied
// before it stay applied.
func (m *Migrator) MigrateUp(ctx context.Context) error {
	pending, err := m.GetPendingMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	if len(pending) == 0 {
		m.logger.Info("No pending migrations")
		return nil
	}

	m.logger.Info("Migrating up", "pendingMigrations", len(pending))

	for _, migration := range pending {
		m.logger.Info("Applying migration", "version", migration.Version, "description", migration.Description)

		if err := m.run(ctx, migration, migration.Up, m.recordSQL(), migration.Version, migration.Description); err != nil {
			m.logger.Error("Migration failed", "version", migration.Version, "error", err)
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}

		m.logger.Info("Applied migration", "version", migration.Version, "description", migration.Description)
	}

	m.logger.Info("All migrations applied successfully")
	return nil
}

// MigrateDown reverts every applied migration in descending version order.
func (m *Migrator) MigrateDown(ctx context.Context) error {
	return m.migrateDown(ctx, "", false)
}

// MigrateDownTo reverts applied migrations whose version is greater than
// targetVersion, in descending version order. The target itself stays applied.
func (m *Migrator) MigrateDownTo(ctx context.Context, targetVersion string) error {
	return m.migrateDown(ctx, targetVersion, true)
}

func (m *Migrator) migrateDown(ctx context.Context, targetVersion string, hasTarget bool) error {
	applied, err := m.appliedSet(ctx)
	if err != nil {
		return err
	}

	var toRevert []*Migration
	for _, migration := range m.migrations() {
		if _, ok := applied[migration.Version]; !ok {
			continue
		}
		if hasTarget && migration.Version <= targetVersion {
			continue
		}
		toRevert = append(toRevert, migration)
	}

	if len(toRevert) == 0 {
		m.logger.Info("No migrations to roll back")
		return nil
	}

	// Sort migrations by version in descending order for rollback
	sort.Slice(toRevert, func(i, j int) bool {
		return toRevert[i].Version > toRevert[j].Version
	})

	m.logger.Info("Migrating down", "targetVersion", targetVersion, "migrations", len(toRevert))

	for _, migration := range toRevert {
		m.logger.Info("Rolling back migration", "version", migration.Version, "description", migration.Description)

		if err := m.run(ctx, migration, migration.Down, m.deleteSQL(), migration.Version); err != nil {
			m.logger.Error("Rollback failed", "version", migration.Version, "error", err)
			return fmt.Errorf("failed to revert migration %s: %w", migration.Version, err)
		}

		m.logger.Info("Rolled back migration", "version", migration.Version, "description", migration.Description)
	}

	m.logger.Info("All migrations rolled back successfully")
	return nil
}

// run executes fn and the bookkeeping statement in one transaction.
func (m *Migrator) run(ctx context.Context, migration *Migration, fn MigrationFunc, bookkeeping string, args ...any) error {
	if fn == nil {
		fn = NoopMigrationFunc
	}

	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, &Tx{Tx: tx, dialect: m.conn.Dialect()}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to update %s for %s: %w", m.table, migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (m *Migrator) appliedSet(ctx context.Context) (map[string]struct{}, error) {
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(applied))
	for _, rec := range applied {
		set[rec.Version] = struct{}{}
	}
	return set, nil
}

// migrations returns the provider's migrations, warning when string order
// and numeric order of the versions disagree.
func (m *Migrator) migrations() []*Migration {
	migrations := m.migrationProvider.Migrations()
	if mixedWidthVersions(migrations) {
		versions := make([]string, len(migrations))
		for i, migration := range migrations {
			versions[i] = migration.Version
		}
		m.logger.Warn("Numeric migration versions have different widths and are ordered as strings",
			"versions", strings.Join(versions, ","))
	}
	return migrations
}

func (m *Migrator) schemaSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    version VARCHAR(255) PRIMARY KEY,
    description TEXT,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`, m.table)
}

func (m *Migrator) recordSQL() string {
	d := m.conn.Dialect()
	return fmt.Sprintf("INSERT INTO %s (version, description) VALUES (%s, %s)",
		m.table, platform.Placeholder(d, 1), platform.Placeholder(d, 2))
}

func (m *Migrator) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE version = %s", m.table, platform.Placeholder(m.conn.Dialect(), 1))
}

var appliedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseAppliedAt accepts the representations drivers use for TIMESTAMP values.
func parseAppliedAt(v any) (time.Time, bool) {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}, false
	}
	for _, layout := range appliedAtLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
