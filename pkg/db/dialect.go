package db

import (
	"strings"

	"gorm.io/gorm"
)

// DialectName reports the gorm dialect, defaulting to sqlite.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return "sqlite"
	}
	name := strings.ToLower(strings.TrimSpace(conn.Dialector.Name()))
	if name == "" {
		return "sqlite"
	}
	return name
}

// IsPostgres reports whether conn talks to Postgres.
func IsPostgres(conn *gorm.DB) bool {
	switch DialectName(conn) {
	case "postgres", "postgresql":
		return true
	default:
		return false
	}
}

// LikeOperator returns a case-insensitive LIKE operator for the dialect.
// sqlite LIKE is already case-insensitive for ASCII.
func LikeOperator(conn *gorm.DB) string {
	if IsPostgres(conn) {
		return "ILIKE"
	}
	return "LIKE"
}

// EscapeLike escapes LIKE wildcards in user input.
func EscapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
