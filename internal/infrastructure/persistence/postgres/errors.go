package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jkcollege/school-portal/internal/domain/shared"
	"github.com/jkcollege/school-portal/pkg/retry"
)

// mapError translates driver errors into the shared taxonomy. Errors pgx
// reports as safe to retry come back marked for pkg/retry.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var mapped error
	var pgErr *pgconn.PgError
	switch {
	case IsNoRows(err):
		mapped = shared.WrapError("postgres", op, shared.ErrNotFound, "row not found", err)
	case IsUniqueViolation(err):
		mapped = shared.WrapError("postgres", op, shared.ErrAlreadyExists, "row already exists", err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		mapped = shared.WrapError("postgres", op, shared.ErrTimeout, "query timed out", err)
	case errors.Is(err, ErrConnectionClosed):
		mapped = shared.WrapError("postgres", op, shared.ErrServiceUnavailable, "database connection closed", err)
	case errors.As(err, &pgErr):
		mapped = shared.WrapError("postgres", op, shared.ErrRemote, pgErr.Message, err)
	default:
		mapped = shared.NewNetworkError("postgres", op, err)
	}

	if pgconn.SafeToRetry(err) {
		return retry.Retryable(mapped)
	}
	return mapped
}
