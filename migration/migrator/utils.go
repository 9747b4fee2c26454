package migrator

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// VersionLayout formats generated migration versions. Zero-padded timestamps
// sort lexically in chronological order.
const VersionLayout = "20060102150405"

var migrationFileRe = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// MigrationFile is a parsed migration file name.
type MigrationFile struct {
	Version   string
	Name      string
	Direction string // "up" or "down"
}

// ParseMigrationFileName parses names of the form <version>_<name>.<up|down>.sql.
func ParseMigrationFileName(filename string) (*MigrationFile, error) {
	m := migrationFileRe.FindStringSubmatch(filename)
	if m == nil {
		return nil, fmt.Errorf("invalid migration filename: %s", filename)
	}
	return &MigrationFile{
		Version:   m[1],
		Name:      m[2],
		Direction: m[3],
	}, nil
}

// GenerateMigrationFileName is the inverse of ParseMigrationFileName.
func GenerateMigrationFileName(version, name, direction string) string {
	return fmt.Sprintf("%s_%s.%s.sql", version, name, direction)
}

// GetNextMigrationVersion returns a version derived from the given time.
func GetNextMigrationVersion(now time.Time) string {
	return now.UTC().Format(VersionLayout)
}

// DescriptionFromName turns a file name part like "create_doctors_table" into
// "Create doctors table".
func DescriptionFromName(name string) string {
	desc := strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	r, size := utf8.DecodeRuneInString(desc)
	if r == utf8.RuneError {
		return desc
	}
	return string(unicode.ToUpper(r)) + desc[size:]
}

// mixedWidthVersions reports whether all versions are numeric but not all of
// the same length, in which case string order differs from numeric order.
func mixedWidthVersions(migrations []*Migration) bool {
	width := -1
	mixed := false
	for _, m := range migrations {
		if m.Version == "" || strings.TrimLeft(m.Version, "0123456789") != "" {
			return false
		}
		switch {
		case width < 0:
			width = len(m.Version)
		case width != len(m.Version):
			mixed = true
		}
	}
	return mixed
}
