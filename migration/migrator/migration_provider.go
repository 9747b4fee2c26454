package migrator

import (
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"sort"
)

// MigrationProvider provides a list of migrations
type MigrationProvider interface {
	// Migrations provides a list of migrations sorted by version in ascending order
	Migrations() []*Migration
}

// RegisteredMigrationProvider is a simple in-memory implementation of MigrationProvider
type RegisteredMigrationProvider struct {
	migrations []*Migration
	sorted     bool
}

// NewRegisteredMigrationProvider creates a new in-memory migration provider with the given migrations.
// The migrations will be sorted by version when accessed through the Migrations() method.
func NewRegisteredMigrationProvider(migrations ...*Migration) *RegisteredMigrationProvider {
	return &RegisteredMigrationProvider{
		migrations: migrations,
	}
}

// Register adds a migration to the provider
func (p *RegisteredMigrationProvider) Register(migration *Migration) {
	p.migrations = append(p.migrations, migration)
	p.sorted = false
}

// Migrations returns the list of migrations sorted by version in ascending order
func (p *RegisteredMigrationProvider) Migrations() []*Migration {
	if !p.sorted {
		sortMigrations(p.migrations)
		p.sorted = true
	}
	return p.migrations
}

// FSMigrationProvider is a migration provider that loads migrations from a filesystem.
// Files follow the <version>_<name>.up.sql / <version>_<name>.down.sql convention;
// the name, with underscores turned into spaces, becomes the description.
type FSMigrationProvider struct {
	fsys       fs.FS
	migrations []*Migration
}

// NewFSMigrationProvider creates a new filesystem-based migration provider.
// It returns an error if the filesystem cannot be scanned, if a version is
// used by two different names, or if any migration lacks its up or down file.
func NewFSMigrationProvider(fsys fs.FS) (*FSMigrationProvider, error) {
	p := &FSMigrationProvider{fsys: fsys}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

// Migrations returns the list of migrations loaded from the filesystem, sorted by version in ascending order.
func (p *FSMigrationProvider) Migrations() []*Migration {
	return p.migrations
}

type fsMigration struct {
	name     string
	up, down string // file paths
}

func (p *FSMigrationProvider) load() error {
	found := make(map[string]*fsMigration) // version -> files

	err := fs.WalkDir(p.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		migrationFile, err := ParseMigrationFileName(d.Name())
		if err != nil {
			// Skip files that don't match migration pattern
			return nil
		}

		entry, exists := found[migrationFile.Version]
		if !exists {
			entry = &fsMigration{name: migrationFile.Name}
			found[migrationFile.Version] = entry
		}
		if entry.name != migrationFile.Name {
			return fmt.Errorf("conflicting migrations for version %s: %s and %s",
				migrationFile.Version, entry.name, migrationFile.Name)
		}

		switch migrationFile.Direction {
		case "up":
			entry.up = path
		case "down":
			entry.down = path
		default:
			return fmt.Errorf("invalid migration direction: %s", migrationFile.Direction)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan migrations directory: %w", err)
	}

	var incomplete []string
	migrations := make(map[string]*Migration, len(found))
	for version, entry := range found {
		if entry.up == "" || entry.down == "" {
			incomplete = append(incomplete, version)
			continue
		}
		migrations[version] = &Migration{
			Version:     version,
			Description: DescriptionFromName(entry.name),
			Up:          MigrationFuncFromSQLFilename(entry.up, p.fsys),
			Down:        MigrationFuncFromSQLFilename(entry.down, p.fsys),
		}
	}

	if len(incomplete) > 0 {
		sort.Strings(incomplete)
		return fmt.Errorf("incomplete migrations found (missing up or down files): %v", incomplete)
	}

	p.migrations = slices.Collect(maps.Values(migrations))
	sortMigrations(p.migrations)

	return nil
}

// sortMigrations orders migrations by plain string comparison of versions.
func sortMigrations(migrations []*Migration) {
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
}
