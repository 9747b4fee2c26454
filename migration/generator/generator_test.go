package generator_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/tabula/core/platform"
	"github.com/stokaro/tabula/dbschema"
	"github.com/stokaro/tabula/examples/medical"
	"github.com/stokaro/tabula/migration/generator"
	"github.com/stokaro/tabula/migration/migrator"
	"github.com/stokaro/tabula/orm"
)

var fixedNow = func() time.Time {
	return time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)
}

func readFile(c *qt.C, path string) string {
	data, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	return string(data)
}

func TestGenerateEmptyMigration(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	files, err := generator.GenerateEmptyMigration(generator.GenerateMigrationOptions{
		MigrationName: "Add patient allergies",
		OutputDir:     dir,
		Now:           fixedNow,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(files.Version, qt.Equals, "20250601123045")
	c.Assert(files.UpFile, qt.Equals, filepath.Join(dir, "20250601123045_add_patient_allergies.up.sql"))
	c.Assert(files.DownFile, qt.Equals, filepath.Join(dir, "20250601123045_add_patient_allergies.down.sql"))

	up := readFile(c, files.UpFile)
	c.Assert(up, qt.Contains, "-- Migration: Add patient allergies")
	c.Assert(up, qt.Contains, "-- Direction: UP")
	c.Assert(readFile(c, files.DownFile), qt.Contains, "-- Direction: DOWN")

	// comment-only scripts are valid no-op migrations
	c.Assert(migrator.SplitSQLStatements(up, platform.SQLite), qt.HasLen, 0)
}

func TestGenerateEmptyMigration_DefaultName(t *testing.T) {
	c := qt.New(t)

	files, err := generator.GenerateEmptyMigration(generator.GenerateMigrationOptions{
		OutputDir: t.TempDir(),
		Now:       fixedNow,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(filepath.Base(files.UpFile), qt.Equals, "20250601123045_migration.up.sql")
}

func TestGenerateEmptyMigration_BumpsTakenVersion(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	opts := generator.GenerateMigrationOptions{MigrationName: "first", OutputDir: dir, Now: fixedNow}
	first, err := generator.GenerateEmptyMigration(opts)
	c.Assert(err, qt.IsNil)

	opts.MigrationName = "second"
	second, err := generator.GenerateEmptyMigration(opts)
	c.Assert(err, qt.IsNil)

	c.Assert(first.Version, qt.Equals, "20250601123045")
	c.Assert(second.Version, qt.Equals, "20250601123046")

	// the directory stays loadable
	provider, err := migrator.NewFSMigrationProvider(os.DirFS(dir))
	c.Assert(err, qt.IsNil)
	c.Assert(provider.Migrations(), qt.HasLen, 2)
	c.Assert(provider.Migrations()[1].Description, qt.Equals, "Second")
}

func TestGenerateMigration_NoModels(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	files, err := generator.GenerateMigration(generator.GenerateMigrationOptions{
		OutputDir: dir,
		Logger:    slog.New(slog.DiscardHandler),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(files, qt.IsNil)

	entries, err := os.ReadDir(dir)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 0)
}

func TestGenerateMigration_InvalidModel(t *testing.T) {
	c := qt.New(t)

	type unmapped struct{}
	_, err := generator.GenerateMigration(generator.GenerateMigrationOptions{
		OutputDir: t.TempDir(),
		Models:    []orm.Entity{orm.EntityOf[unmapped]()},
		Logger:    slog.New(slog.DiscardHandler),
	})
	c.Assert(err, qt.ErrorIs, orm.ErrInvalidSchema)
	c.Assert(err, qt.ErrorMatches, "error generating up migration SQL: .*")
}

func TestGenerateMigration_MedicalModels(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	files, err := generator.GenerateMigration(generator.GenerateMigrationOptions{
		MigrationName: "initial_schema",
		OutputDir:     dir,
		Models:        medical.Models(),
		Dialect:       platform.SQLite,
		Now:           fixedNow,
		Logger:        slog.New(slog.DiscardHandler),
	})
	c.Assert(err, qt.IsNil)

	up := readFile(c, files.UpFile)
	down := readFile(c, files.DownFile)
	c.Assert(strings.Index(up, "CREATE TABLE IF NOT EXISTS patients") < strings.Index(up, "CREATE TABLE IF NOT EXISTS appointments"), qt.IsTrue)
	c.Assert(strings.Index(down, "DROP TABLE IF EXISTS appointments;") < strings.Index(down, "DROP TABLE IF EXISTS patients;"), qt.IsTrue)

	conn, err := dbschema.ConnectToDatabase("sqlite::memory:")
	c.Assert(err, qt.IsNil)
	defer conn.Close()

	m, err := migrator.NewFSMigrator(conn, os.DirFS(dir))
	c.Assert(err, qt.IsNil)
	m = m.WithLogger(slog.New(slog.DiscardHandler))
	c.Assert(m.MigrateUp(ctx), qt.IsNil)

	var count int
	err = conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('patients', 'appointments', 'users')").Scan(&count)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 3)

	c.Assert(m.MigrateDown(ctx), qt.IsNil)
	err = conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('patients', 'appointments', 'users')").Scan(&count)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 0)
}
