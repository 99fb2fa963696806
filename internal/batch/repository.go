package batch

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/platform/db"
)

// Repository persists batches in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const batchColumns = `id, product_id, batch_no, quantity, unit, expiry_date, status, created_at, updated_at`

// WithStore runs fn inside a transaction bound to a TxStore.
func (r *Repository) WithStore(ctx context.Context, fn func(context.Context, Store) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

// Get returns one batch by id.
func (r *Repository) Get(ctx context.Context, id int64) (Batch, error) {
	return scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM product_batches WHERE id=$1`, id))
}

// ListByProduct lists batches of a product, newest first.
func (r *Repository) ListByProduct(ctx context.Context, productID int64) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+`
FROM product_batches WHERE product_id=$1 ORDER BY created_at DESC, id DESC`, productID)
	if err != nil {
		return nil, err
	}
	return scanBatches(rows)
}

// GetExpiring lists active batches expiring in [from, to].
func (r *Repository) GetExpiring(ctx context.Context, from, to time.Time) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+`
FROM product_batches
WHERE status=$1 AND expiry_date IS NOT NULL AND expiry_date BETWEEN $2 AND $3
ORDER BY expiry_date ASC, id ASC`, string(StatusActive), from, to)
	if err != nil {
		return nil, err
	}
	return scanBatches(rows)
}

// GetExpired lists active batches whose expiry is before the cutoff.
func (r *Repository) GetExpired(ctx context.Context, before time.Time) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+`
FROM product_batches
WHERE status=$1 AND expiry_date IS NOT NULL AND expiry_date < $2
ORDER BY expiry_date ASC, id ASC`, string(StatusActive), before)
	if err != nil {
		return nil, err
	}
	return scanBatches(rows)
}

// TxStore binds Store to a pgx transaction.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps a transaction.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// InsertBatch writes a new batch row. The (product_id, batch_no) unique
// constraint backs the duplicate guard.
func (s *TxStore) InsertBatch(ctx context.Context, b Batch) (Batch, error) {
	now := time.Now().UTC()
	err := s.tx.QueryRow(ctx, `INSERT INTO product_batches (product_id, batch_no, quantity, unit, expiry_date, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7) RETURNING id`,
		b.ProductID, b.BatchNo, b.Quantity, b.Unit, b.Expiry, string(b.Status), now).Scan(&b.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Batch{}, ErrDuplicateBatch
		}
		return Batch{}, err
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	return b, nil
}

// GetBatchForUpdate locks a batch row by id.
func (s *TxStore) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	return scanBatch(s.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM product_batches WHERE id=$1 FOR UPDATE`, id))
}

// FindBatchForUpdate locks a batch row by (product, batch number).
func (s *TxStore) FindBatchForUpdate(ctx context.Context, productID int64, batchNo string) (Batch, error) {
	return scanBatch(s.tx.QueryRow(ctx, `SELECT `+batchColumns+`
FROM product_batches WHERE product_id=$1 AND batch_no=$2 FOR UPDATE`, productID, batchNo))
}

// UpdateBatch writes quantity and status back.
func (s *TxStore) UpdateBatch(ctx context.Context, b Batch) error {
	tag, err := s.tx.Exec(ctx, `UPDATE product_batches SET quantity=$1, status=$2, updated_at=$3 WHERE id=$4`,
		b.Quantity, string(b.Status), b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	var status string
	err := row.Scan(&b.ID, &b.ProductID, &b.BatchNo, &b.Quantity, &b.Unit, &b.Expiry, &status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, err
	}
	b.Status = Status(status)
	return b, nil
}

func scanBatches(rows pgx.Rows) ([]Batch, error) {
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		var b Batch
		var status string
		if err := rows.Scan(&b.ID, &b.ProductID, &b.BatchNo, &b.Quantity, &b.Unit, &b.Expiry, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Status = Status(status)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}
