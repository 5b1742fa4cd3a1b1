package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation.
// When constraintName is set the violated constraint must match it.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return constraintName == "" || strings.Contains(err.Error(), constraintName)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return constraintName == "" || pqErr.Constraint == constraintName
	}

	msg := err.Error()
	if idx := strings.Index(msg, sqliteUniquePrefix); idx >= 0 {
		return constraintName == "" || sqliteConstraintMatches(msg[idx+len(sqliteUniquePrefix):], constraintName)
	}
	if !strings.Contains(msg, "duplicate key value") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

const sqliteUniquePrefix = "UNIQUE constraint failed: "

// sqliteConstraintMatches compares sqlite's "table.col, table.col" detail with
// a constraint named <table>_<cols>_key, where multi-column names may drop
// the _id suffixes.
func sqliteConstraintMatches(detail, constraintName string) bool {
	var table string
	var cols, short []string
	for _, part := range strings.Split(detail, ",") {
		t, col, ok := strings.Cut(strings.TrimSpace(part), ".")
		if !ok {
			return false
		}
		table = t
		cols = append(cols, col)
		short = append(short, strings.TrimSuffix(col, "_id"))
	}
	if table == "" {
		return false
	}
	return constraintName == table+"_"+strings.Join(cols, "_")+"_key" ||
		constraintName == table+"_"+strings.Join(short, "_")+"_key"
}
