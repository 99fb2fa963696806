package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates the request payload failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrConcurrencyConflict indicates a lost race on a contended row.
	// Safe to retry the whole operation.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrPersistence wraps storage-layer failures surfaced after rollback.
	ErrPersistence = errors.New("persistence failure")
)

// Persistence wraps a storage error so callers can tell infrastructure
// failures apart from domain rejections.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
