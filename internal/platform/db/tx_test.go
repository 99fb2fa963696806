package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

func TestClassifySerializationFailure(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	err := Classify(fmt.Errorf("append entry: %w", pgErr))
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}

func TestClassifyDeadlock(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	require.ErrorIs(t, Classify(pgErr), shared.ErrConcurrencyConflict)
}

func TestClassifyKeepsDomainErrors(t *testing.T) {
	sentinel := errors.New("insufficient stock")
	err := Classify(fmt.Errorf("post: %w", sentinel))
	require.ErrorIs(t, err, sentinel)
	require.NotErrorIs(t, err, shared.ErrConcurrencyConflict)
}

func TestIsSerializationFailure(t *testing.T) {
	require.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40P01"}))
	require.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsSerializationFailure(errors.New("plain")))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
}
