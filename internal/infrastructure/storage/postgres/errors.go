package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"backoffice/internal/core/apperror"
)

// SQLSTATE codes the allocation path distinguishes.
const (
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateQueryCanceled        = "57014"
	sqlStateAdminShutdown        = "57P01"
	sqlStateCannotConnectNow     = "57P03"
)

// ClassifyError maps driver errors onto the apperror taxonomy.
// Errors that are already AppErrors pass through untouched.
func ClassifyError(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation:
			return apperror.NewConflict("duplicate key").
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case sqlStateForeignKeyViolation:
			return apperror.NewConflict("referenced record does not exist").
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return apperror.NewRetryableConflict("concurrent allocation, retry").WithCause(err)
		case sqlStateQueryCanceled, sqlStateAdminShutdown, sqlStateCannotConnectNow:
			return apperror.NewUnavailable("database", err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewUnavailable("database", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.SafeToRetry(err) {
		return apperror.NewUnavailable("database", err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return apperror.NewUnavailable("database", err)
	}

	return err
}
