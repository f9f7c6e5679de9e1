package postgres

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

// IsUniqueViolation checks if an error is a PostgreSQL unique constraint violation
// If constraint is empty, it returns true for any unique violation
// If constraint is specified, it only returns true for that specific constraint
func IsUniqueViolation(err error, constraint string) bool {
	return hasCode(err, pqUniqueViolation, constraint)
}

// IsForeignKeyViolation reports a violated foreign key, optionally a named one.
func IsForeignKeyViolation(err error, constraint string) bool {
	return hasCode(err, pqForeignKeyViolation, constraint)
}

// IsCheckViolation reports a violated CHECK constraint, optionally a named one.
func IsCheckViolation(err error, constraint string) bool {
	return hasCode(err, pqCheckViolation, constraint)
}

func hasCode(err error, code, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != code {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
