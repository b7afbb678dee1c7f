package errors

// Postgres helpers: map pgx errors onto ErrorCode and decide retry semantics

import (
	"context"
	stderrs "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgErrUniqueViolation      = "23505"
	pgErrNotNullViolation     = "23502"
	pgErrCheckViolation       = "23514"
	pgErrInvalidText          = "22P02"
	pgErrSerializationFailure = "40001"
	pgErrDeadlockDetected     = "40P01"
	pgErrLockNotAvailable     = "55P03"
	pgErrCannotConnectNow     = "57P03"
	pgErrAdminShutdown        = "57P01"
)

// ExtractPgError returns (*pgconn.PgError, true) if the root cause is a PgError
func ExtractPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if stderrs.As(Root(err), &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// IsSQLState reports whether the error is a Postgres error with the given SQLSTATE
func IsSQLState(err error, code string) bool {
	pgErr, ok := ExtractPgError(err)
	return ok && pgErr.Code == code
}

// IsDuplicateKey reports whether the error is a unique constraint violation
func IsDuplicateKey(err error) bool { return IsSQLState(err, pgErrUniqueViolation) }

// FromPostgres wraps a pg error as a StorageFailure, narrowing the code when the SQLSTATE says more
func FromPostgres(err error, msg string) error {
	if err == nil {
		return nil
	}
	pgErr, ok := ExtractPgError(err)
	if !ok {
		return StorageFailuref(err, "%s", msg)
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		return Wrap(err, ErrorCodeConflict, msg)
	case pgErrNotNullViolation, pgErrCheckViolation, pgErrInvalidText:
		return Wrap(err, ErrorCodeInvalidArgument, msg)
	case pgErrCannotConnectNow, pgErrAdminShutdown:
		return Wrap(err, ErrorCodeUnavailable, msg)
	}
	return StorageFailuref(err, "%s", msg)
}

// IsRetryable reports whether a database error is transient contention worth another attempt
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}
	root := Root(err)
	var pgErr *pgconn.PgError
	if stderrs.As(root, &pgErr) {
		switch pgErr.Code {
		case pgErrSerializationFailure, pgErrDeadlockDetected, pgErrLockNotAvailable:
			return true
		}
		return false
	}
	s := strings.ToLower(root.Error())
	return strings.Contains(s, "commit unexpectedly resulted in rollback") ||
		strings.Contains(s, "deadlock detected") ||
		strings.Contains(s, "could not serialize access")
}
