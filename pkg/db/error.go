package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// IsDuplicateKeyErr reports a unique-constraint violation on any supported dialect.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "duplicate key value violates unique constraint"):
		return true
	case strings.Contains(msg, "Error 1062"):
		return true
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return true
	}
	return false
}

// IsUniqueViolationOn reports a unique violation of one specific constraint.
// Postgres and MySQL carry the constraint name; SQLite lists the columns, so
// column is matched there in "table.column" form.
func IsUniqueViolationOn(err error, constraint, column string) bool {
	if !IsDuplicateKeyErr(err) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName == constraint
	}
	msg := err.Error()
	if constraint != "" && strings.Contains(msg, constraint) {
		return true
	}
	return column != "" && strings.Contains(msg, column)
}
