package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// serialization_failure and deadlock_detected
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// WithTx executes a function within a transaction using the RepeatableRead
// isolation level. Any error from fn rolls the whole transaction back.
// Serialization failures come back wrapped in shared.ErrConcurrencyConflict
// so callers can classify them as retryable.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return shared.Persistence(fmt.Errorf("platform/db: begin tx: %w", err))
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return Classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		if IsSerializationFailure(err) {
			return fmt.Errorf("%w: %v", shared.ErrConcurrencyConflict, err)
		}
		return shared.Persistence(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

// Classify rewraps serialization failures as shared.ErrConcurrencyConflict
// and leaves every other error untouched, domain sentinels included.
func Classify(err error) error {
	if IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrConcurrencyConflict, err)
	}
	return err
}

// IsSerializationFailure reports whether err is a lost race the caller can
// safely retry.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
