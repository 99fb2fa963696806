// Package docnum generates human-readable document numbers, unique per
// document type and year. Numbers are never reused, even when the document
// that held one is cancelled or deleted.
package docnum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Source is the interface document workflows consume.
type Source interface {
	Next(ctx context.Context, docType string) (string, error)
}

// SequenceStore hands out strictly increasing sequence values per
// (doc type, year). Implementations must be safe under concurrent callers.
type SequenceStore interface {
	NextSeq(ctx context.Context, docType string, year int) (int64, error)
}

// ErrInvalidDocType indicates an empty document type prefix.
var ErrInvalidDocType = errors.New("docnum: document type required")

// Generator formats sequence values as PREFIX-YYYY-NNNN.
type Generator struct {
	store SequenceStore
	now   func() time.Time
}

// NewGenerator builds a Generator over the given store.
func NewGenerator(store SequenceStore) *Generator {
	return &Generator{store: store, now: time.Now}
}

// Next returns the next document number for docType.
func (g *Generator) Next(ctx context.Context, docType string) (string, error) {
	if docType == "" {
		return "", ErrInvalidDocType
	}
	year := g.now().UTC().Year()
	seq, err := g.store.NextSeq(ctx, docType, year)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%04d", docType, year, seq), nil
}

// PGStore increments sequences through an atomic upsert, so concurrent
// creates for the same document type never observe the same value.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// NextSeq atomically increments and returns the sequence value.
func (s *PGStore) NextSeq(ctx context.Context, docType string, year int) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `INSERT INTO document_sequences (doc_type, year, seq)
VALUES ($1, $2, 1)
ON CONFLICT (doc_type, year) DO UPDATE SET seq = document_sequences.seq + 1
RETURNING seq`, docType, year).Scan(&seq)
	return seq, err
}
