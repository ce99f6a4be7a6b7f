package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrUniqueViolation is returned when an insert or update collides with a
	// unique constraint.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrTransient is returned for failures the caller may retry: serialization
	// failures, deadlocks and lost connections. The transaction has been
	// rolled back.
	ErrTransient = errors.New("transient database failure")
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// wrapErr annotates err with msg and classifies well-known PostgreSQL
// failures as ErrUniqueViolation or ErrTransient.
func wrapErr(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %s", msg, ErrUniqueViolation, pgErr.ConstraintName)
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%s: %w: %v", msg, ErrTransient, err)
		}
		return fmt.Errorf("%s: %w", msg, err)
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%s: %w: %v", msg, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
