// Package typemap maps Go field types to storage column types.
//
// The mapping is two-step: Of classifies a Go value into a dialect-neutral Type,
// and SQLType renders that Type for a concrete database dialect. Both are pure
// functions with no state.
package typemap

import (
	"time"

	"github.com/google/uuid"

	"github.com/stokaro/tabula/core/platform"
)

// Type is a dialect-neutral storage type.
type Type int

const (
	Text Type = iota
	Integer
	BigInt
	SmallInt
	Boolean
	Timestamp
	Decimal
	Double
	Real
	UUID
	Bytes
)

var typeNames = map[Type]string{
	Text:      "text",
	Integer:   "integer",
	BigInt:    "bigint",
	SmallInt:  "smallint",
	Boolean:   "boolean",
	Timestamp: "timestamp",
	Decimal:   "decimal",
	Double:    "double",
	Real:      "real",
	UUID:      "uuid",
	Bytes:     "bytes",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsInteger reports whether values of the type are whole numbers.
func (t Type) IsInteger() bool {
	return t == Integer || t == BigInt || t == SmallInt
}

// Of classifies a Go value. Pointers are unwrapped to their element type, so
// *time.Time maps the same as time.Time. Unknown types fall back to Text.
func Of(v any) Type {
	switch v.(type) {
	case int, int32, uint32, *int, *int32, *uint32:
		return Integer
	case int64, uint64, uint, *int64, *uint64, *uint:
		return BigInt
	case int16, int8, uint16, uint8, *int16, *int8, *uint16, *uint8:
		return SmallInt
	case string, *string:
		return Text
	case bool, *bool:
		return Boolean
	case time.Time, *time.Time:
		return Timestamp
	case float64, *float64:
		return Double
	case float32, *float32:
		return Real
	case uuid.UUID, *uuid.UUID:
		return UUID
	case []byte:
		return Bytes
	default:
		return Text
	}
}

// OfType classifies the Go type V without needing a value.
func OfType[V any]() Type {
	var zero V
	return Of(zero)
}

var postgresTypes = map[Type]string{
	Text:      "TEXT",
	Integer:   "INTEGER",
	BigInt:    "BIGINT",
	SmallInt:  "SMALLINT",
	Boolean:   "BOOLEAN",
	Timestamp: "TIMESTAMP",
	Decimal:   "DECIMAL",
	Double:    "DOUBLE PRECISION",
	Real:      "REAL",
	UUID:      "UUID",
	Bytes:     "BYTEA",
}

var mysqlTypes = map[Type]string{
	Text:      "TEXT",
	Integer:   "INT",
	BigInt:    "BIGINT",
	SmallInt:  "SMALLINT",
	Boolean:   "BOOLEAN",
	Timestamp: "DATETIME",
	Decimal:   "DECIMAL(18,4)",
	Double:    "DOUBLE",
	Real:      "FLOAT",
	UUID:      "CHAR(36)",
	Bytes:     "BLOB",
}

var sqliteTypes = map[Type]string{
	Text:      "TEXT",
	Integer:   "INTEGER",
	BigInt:    "INTEGER",
	SmallInt:  "INTEGER",
	Boolean:   "BOOLEAN",
	Timestamp: "TIMESTAMP",
	Decimal:   "NUMERIC",
	Double:    "REAL",
	Real:      "REAL",
	UUID:      "TEXT",
	Bytes:     "BLOB",
}

func tableFor(dialect string) map[Type]string {
	switch platform.NormalizeDialect(dialect) {
	case platform.MySQL, platform.MariaDB:
		return mysqlTypes
	case platform.SQLite:
		return sqliteTypes
	default:
		return postgresTypes
	}
}

// SQLType renders t as a column type for the dialect. Unknown dialects use
// the PostgreSQL names, unknown types render as TEXT.
func SQLType(t Type, dialect string) string {
	if name, ok := tableFor(dialect)[t]; ok {
		return name
	}
	return "TEXT"
}

// Serial renders an auto-incrementing primary key column type. The second
// return value is false when t cannot auto-increment, in which case the plain
// SQLType should be used.
func Serial(t Type, dialect string) (string, bool) {
	if !t.IsInteger() {
		return "", false
	}
	switch platform.NormalizeDialect(dialect) {
	case platform.MySQL, platform.MariaDB:
		return SQLType(t, dialect) + " AUTO_INCREMENT", true
	case platform.SQLite:
		// INTEGER PRIMARY KEY aliases the rowid
		return "INTEGER", true
	default:
		if t == BigInt {
			return "BIGSERIAL", true
		}
		return "SERIAL", true
	}
}
