package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
)

// Postgres error codes the repositories interpret.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeSerializationFail   = "40001"
	codeDeadlockDetected    = "40P01"
)

// translateErr maps driver errors onto the taxonomy. Unique violations are
// terminal conflicts (idempotency keys, duplicate ids); serialization
// failures and deadlocks are retryable availability errors; everything else
// is internal.
func translateErr(resource string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(resource)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return apperr.Conflict(fmt.Sprintf("%s already exists: %s", resource, pgErr.ConstraintName), false)
		case codeForeignKeyViolation:
			return apperr.Conflict(fmt.Sprintf("%s references a missing or referenced row: %s", resource, pgErr.ConstraintName), false)
		case codeSerializationFail, codeDeadlockDetected:
			return apperr.Unavailable("storage serialization failure", true, err)
		}
	}

	return apperr.Internal(fmt.Sprintf("storage failure on %s", resource), err)
}
