package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository serves the read-side queries from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `id, product_id, location_id, movement_type, qty, unit_cost, balance, ref_type, ref_id, created_by, created_at`

// GetLevel returns the stock level row for (product, location).
func (r *Repository) GetLevel(ctx context.Context, productID, locationID int64) (Level, error) {
	var level Level
	err := r.pool.QueryRow(ctx, `SELECT product_id, location_id, quantity, avg_cost, updated_at
FROM stock_levels WHERE product_id=$1 AND location_id=$2`, productID, locationID).
		Scan(&level.ProductID, &level.LocationID, &level.Quantity, &level.AvgCost, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Level{}, ErrLevelNotFound
		}
		return Level{}, err
	}
	return level, nil
}

// GetHistory lists entries for (product, location) ascending by creation.
func (r *Repository) GetHistory(ctx context.Context, filter HistoryFilter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+`
FROM stock_ledger
WHERE product_id=$1 AND location_id=$2 AND created_at BETWEEN COALESCE($3::timestamptz, '-infinity') AND COALESCE($4::timestamptz, 'infinity')
ORDER BY created_at ASC, id ASC
LIMIT $5`, filter.ProductID, filter.LocationID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// GetByReference lists entries written for one document.
func (r *Repository) GetByReference(ctx context.Context, refType string, refID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+`
FROM stock_ledger WHERE ref_type=$1 AND ref_id=$2 ORDER BY id ASC`, refType, refID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var movement string
		if err := rows.Scan(&e.ID, &e.ProductID, &e.LocationID, &movement, &e.Qty, &e.UnitCost, &e.Balance, &e.RefType, &e.RefID, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.MovementType = MovementType(movement)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// TxStore binds Store to a pgx transaction. Workflow repositories embed it so
// their posting transaction and the ledger writes share one unit of work.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps a transaction.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// GetLevelForUpdate locks the stock level row for the rest of the
// transaction. Two concurrent postings against the same (product, location)
// serialise here instead of computing diverging balances.
func (s *TxStore) GetLevelForUpdate(ctx context.Context, productID, locationID int64) (Level, error) {
	var level Level
	err := s.tx.QueryRow(ctx, `SELECT product_id, location_id, quantity, avg_cost, updated_at
FROM stock_levels WHERE product_id=$1 AND location_id=$2 FOR UPDATE`, productID, locationID).
		Scan(&level.ProductID, &level.LocationID, &level.Quantity, &level.AvgCost, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Level{}, ErrLevelNotFound
		}
		return Level{}, err
	}
	return level, nil
}

// InsertEntry appends one immutable ledger row.
func (s *TxStore) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_ledger (product_id, location_id, movement_type, qty, unit_cost, balance, ref_type, ref_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		entry.ProductID, entry.LocationID, string(entry.MovementType), entry.Qty, entry.UnitCost, entry.Balance,
		entry.RefType, entry.RefID, nullInt(entry.CreatedBy), entry.CreatedAt).Scan(&entry.ID)
	return entry, err
}

// GetByReference lists entries written for one document, inside the caller's
// transaction. Cancellation reads the originals through this before writing
// compensating entries.
func (s *TxStore) GetByReference(ctx context.Context, refType string, refID uuid.UUID) ([]Entry, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+entryColumns+`
FROM stock_ledger WHERE ref_type=$1 AND ref_id=$2 ORDER BY id ASC`, refType, refID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// UpsertLevel writes the derived level row.
func (s *TxStore) UpsertLevel(ctx context.Context, level Level) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO stock_levels (product_id, location_id, quantity, avg_cost, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (product_id, location_id) DO UPDATE SET quantity=EXCLUDED.quantity, avg_cost=EXCLUDED.avg_cost, updated_at=EXCLUDED.updated_at`,
		level.ProductID, level.LocationID, level.Quantity, level.AvgCost, level.UpdatedAt)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
