package platform

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the Postgres error code for unique_violation.
const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique-index violation.
// Callers translate it by operation context: the only unique index an
// INSERT can trip is known at each call site.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	// modernc.org/sqlite reports SQLITE_CONSTRAINT_UNIQUE in the
	// error text.
	text := err.Error()
	return strings.Contains(text, "UNIQUE constraint failed") ||
		strings.Contains(text, "constraint failed: deployment")
}
