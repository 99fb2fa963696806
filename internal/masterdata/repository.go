package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads master data from PostgreSQL. It satisfies ProductCatalog,
// LocationRegistry and SupplierRegistry.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetProduct returns product master data for an active product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, unit, reorder_threshold, batch_tracked, is_active
FROM products WHERE id=$1 AND is_active`, id).
		Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &p.ReorderThreshold, &p.BatchTracked, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrUnknownReference
		}
		return Product{}, err
	}
	return p, nil
}

// LocationExists reports whether an active location with id exists.
func (r *Repository) LocationExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT true FROM locations WHERE id=$1 AND is_active`, id)
}

// SupplierExists reports whether an active supplier with id exists.
func (r *Repository) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT true FROM suppliers WHERE id=$1 AND is_active`, id)
}

// ListBelowReorder joins stock levels against product thresholds. Used by the
// alert detector; the threshold comparison is quantity <= reorder_threshold.
func (r *Repository) ListBelowReorder(ctx context.Context) ([]LowStockRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.product_id, p.name, l.location_id, l.quantity, p.reorder_threshold
FROM stock_levels l
JOIN products p ON p.id = l.product_id
WHERE p.is_active AND p.reorder_threshold > 0 AND l.quantity <= p.reorder_threshold
ORDER BY l.product_id, l.location_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []LowStockRow
	for rows.Next() {
		var row LowStockRow
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.LocationID, &row.Quantity, &row.Threshold); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// LowStockRow is a stock level at or below its product's reorder threshold.
type LowStockRow struct {
	ProductID   int64
	ProductName string
	LocationID  int64
	Quantity    decimal.Decimal
	Threshold   decimal.Decimal
}

func (r *Repository) exists(ctx context.Context, query string, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, query, id).Scan(&ok)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}
