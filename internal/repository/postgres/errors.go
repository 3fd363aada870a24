package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes this repository maps to domain errors.
const (
	sqlstateInvalidTextRepresentation = "22P02"
	sqlstateForeignKeyViolation       = "23503"
	sqlstateUniqueViolation           = "23505"
)

func sqlstate(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isNoRowsError reports that a single-row query matched nothing.
func isNoRowsError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKeyError reports a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	return sqlstate(err) == sqlstateUniqueViolation
}

// isForeignKeyError reports a foreign key violation.
func isForeignKeyError(err error) bool {
	return sqlstate(err) == sqlstateForeignKeyViolation
}

// isInvalidUUIDError reports that a value could not be cast to a uuid
// column. Lookups treat this the same as no rows: a malformed id can never
// name an existing row, so the answer is not-found, not a server fault.
func isInvalidUUIDError(err error) bool {
	return sqlstate(err) == sqlstateInvalidTextRepresentation
}
