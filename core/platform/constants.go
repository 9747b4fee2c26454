package platform

import (
	"strconv"
	"strings"
)

const (
	Postgres = "postgres"
	MySQL    = "mysql"
	MariaDB  = "mariadb"
	SQLite   = "sqlite"
)

func NormalizeDialect(dialect string) string {
	switch strings.ToLower(dialect) {
	case "pgx", "postgresql", "postgres", "pq":
		return Postgres
	case "mysql":
		return MySQL
	case "mariadb":
		return MariaDB
	case "sqlite", "sqlite3", "file":
		return SQLite
	default:
		return ""
	}
}

// IsMySQLLike reports whether the dialect speaks the MySQL wire protocol and SQL flavour.
func IsMySQLLike(dialect string) bool {
	return dialect == MySQL || dialect == MariaDB
}

// Placeholder returns the positional bind parameter for the n-th (1-based) argument.
func Placeholder(dialect string, n int) string {
	if dialect == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// SupportsReturning reports whether INSERT ... RETURNING can be used to read back generated keys.
func SupportsReturning(dialect string) bool {
	return dialect == Postgres || dialect == SQLite
}
