package generator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/stokaro/tabula/core/schemagen"
	"github.com/stokaro/tabula/migration/migrator"
	"github.com/stokaro/tabula/orm"
)

// GenerateMigrationOptions contains options for migration generation
type GenerateMigrationOptions struct {
	// MigrationName is the name for the migration (optional, defaults to "migration")
	MigrationName string
	// OutputDir is the directory where migration files will be saved
	OutputDir string
	// Models are the entities whose tables the migration creates. Leave empty
	// for GenerateEmptyMigration.
	Models []orm.Entity
	// Dialect selects the SQL rendering of the generated statements
	Dialect string
	// Registry resolves the models (optional)
	Registry *orm.Registry
	// Now returns the time the version is derived from (optional, defaults to time.Now)
	Now func() time.Time
	// Logger receives generator warnings (optional, defaults to slog.Default())
	Logger *slog.Logger
}

// MigrationFiles represents the generated migration files
type MigrationFiles struct {
	UpFile   string // Path to the up migration file
	DownFile string // Path to the down migration file
	Version  string // Migration version (timestamp)
}

var nonNameChars = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeName turns a free-form migration name into the snake_case part of
// a migration file name.
func normalizeName(name string) string {
	name = nonNameChars.ReplaceAllString(strings.ToLower(name), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "migration"
	}
	return name
}

func (opts *GenerateMigrationOptions) defaults() {
	opts.MigrationName = normalizeName(opts.MigrationName)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Registry == nil {
		opts.Registry = orm.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
}

// GenerateEmptyMigration writes an up/down pair with headers only, to be
// filled in by hand.
func GenerateEmptyMigration(opts GenerateMigrationOptions) (*MigrationFiles, error) {
	opts.defaults()

	now := opts.Now()
	version := migrator.GetNextMigrationVersion(now)
	opts.Logger.Debug("Generated migration version", "version", version)

	upSQL := header(opts.MigrationName, "UP", now) + "-- Write your forward migration here\n"
	downSQL := header(opts.MigrationName, "DOWN", now) + "-- Write your rollback migration here\n"

	files, err := createMigrationFiles(opts.OutputDir, version, opts.MigrationName, upSQL, downSQL)
	if err != nil {
		return nil, fmt.Errorf("error creating migration files: %w", err)
	}
	return files, nil
}

// GenerateMigration writes a migration creating the tables of opts.Models in
// dependency order. The down migration drops them in reverse order. With no
// models it does nothing and returns nil files.
func GenerateMigration(opts GenerateMigrationOptions) (*MigrationFiles, error) {
	opts.defaults()

	if len(opts.Models) == 0 {
		opts.Logger.Warn("No models given, migration not generated")
		return nil, nil
	}

	gen := schemagen.NewGenerator(opts.Dialect).
		WithRegistry(opts.Registry).
		WithLogger(opts.Logger)
	tables, err := gen.Tables(opts.Models)
	if err != nil {
		return nil, fmt.Errorf("error generating up migration SQL: %w", err)
	}

	now := opts.Now()
	version := migrator.GetNextMigrationVersion(now)
	opts.Logger.Debug("Generated migration version", "version", version)

	up := make([]string, len(tables))
	down := make([]string, len(tables))
	for i, t := range tables {
		up[i] = t.SQL
		down[len(tables)-1-i] = schemagen.DropTableSQL(t.Name)
	}

	upSQL := header(opts.MigrationName, "UP", now) + strings.Join(up, "\n\n") + "\n"
	downSQL := header(opts.MigrationName, "DOWN", now) + strings.Join(down, "\n") + "\n"

	files, err := createMigrationFiles(opts.OutputDir, version, opts.MigrationName, upSQL, downSQL)
	if err != nil {
		return nil, fmt.Errorf("error creating migration files: %w", err)
	}
	return files, nil
}

func header(name, direction string, now time.Time) string {
	return fmt.Sprintf("-- Migration: %s\n-- Generated on: %s\n-- Direction: %s\n\n",
		migrator.DescriptionFromName(name), now.UTC().Format(time.RFC3339), direction)
}

// createMigrationFiles creates the up and down migration files. While the
// version is already used by a file in outputDir, it is bumped by one second.
func createMigrationFiles(outputDir, version, migrationName, upSQL, downSQL string) (*MigrationFiles, error) {
	// Ensure output directory exists
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	taken, err := usedVersions(outputDir)
	if err != nil {
		return nil, err
	}
	for taken[version] {
		if version, err = bumpVersion(version); err != nil {
			return nil, err
		}
	}

	upFilePath := filepath.Join(outputDir, migrator.GenerateMigrationFileName(version, migrationName, "up"))
	downFilePath := filepath.Join(outputDir, migrator.GenerateMigrationFileName(version, migrationName, "down"))

	// Write up migration file
	if err := os.WriteFile(upFilePath, []byte(upSQL), 0644); err != nil { //nolint:gosec // 0644 is fine
		return nil, fmt.Errorf("failed to write up migration file: %w", err)
	}

	// Write down migration file
	if err := os.WriteFile(downFilePath, []byte(downSQL), 0644); err != nil { //nolint:gosec // 0644 is fine
		return nil, fmt.Errorf("failed to write down migration file: %w", err)
	}

	return &MigrationFiles{
		UpFile:   upFilePath,
		DownFile: downFilePath,
		Version:  version,
	}, nil
}

func usedVersions(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}
	used := make(map[string]bool, len(entries))
	for _, e := range entries {
		if mf, err := migrator.ParseMigrationFileName(e.Name()); err == nil {
			used[mf.Version] = true
		}
	}
	return used, nil
}

func bumpVersion(version string) (string, error) {
	t, err := time.Parse(migrator.VersionLayout, version)
	if err != nil {
		return "", fmt.Errorf("failed to parse migration version %s: %w", version, err)
	}
	return migrator.GetNextMigrationVersion(t.Add(time.Second)), nil
}
