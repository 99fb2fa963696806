package adjustment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/platform/db"
)

// TxRepository is the transactional surface of an approval: document
// operations plus the ledger store bound to the same transaction.
type TxRepository interface {
	ledger.Store
	ledger.ReferenceReader

	InsertHeader(ctx context.Context, doc Adjustment) (int64, error)
	InsertLine(ctx context.Context, line Line) error
	GetForUpdate(ctx context.Context, id int64) (Adjustment, error)
	UpdateHeader(ctx context.Context, doc Adjustment) error
	DeleteLines(ctx context.Context, adjustmentID int64) error
	SetApproved(ctx context.Context, id int64, actorID int64, at time.Time) error
	SetStatus(ctx context.Context, id int64, status Status, actorID int64, at time.Time) error
	SoftDelete(ctx context.Context, id int64, actorID int64, at time.Time) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
	*ledger.TxStore
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, TxStore: ledger.NewTxStore(tx)})
	})
}

const headerColumns = `id, number, location_id, reason_code, status, note, ref_id, created_by, created_at, updated_by, updated_at, approved_by, approved_at, cancelled_at`

// Get returns one adjustment with lines, excluding soft-deleted rows.
func (r *Repository) Get(ctx context.Context, id int64) (Adjustment, error) {
	doc, err := scanHeader(r.pool.QueryRow(ctx, `SELECT `+headerColumns+`
FROM stock_adjustments WHERE id=$1 AND deleted_at IS NULL`, id))
	if err != nil {
		return Adjustment{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, adjustment_id, product_id, qty, unit, unit_cost, note
FROM stock_adjustment_lines WHERE adjustment_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Adjustment{}, err
	}
	doc.Lines, err = scanLines(rows)
	if err != nil {
		return Adjustment{}, err
	}
	return doc, nil
}

// List returns adjustments matching the filter plus a total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Adjustment, int, error) {
	where := ` WHERE deleted_at IS NULL`
	args := []any{}
	idx := 1
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status=$%d", idx)
		args = append(args, string(filter.Status))
		idx++
	}
	if filter.LocationID != 0 {
		where += fmt.Sprintf(" AND location_id=$%d", idx)
		args = append(args, filter.LocationID)
		idx++
	}
	if filter.ReasonCode != "" {
		where += fmt.Sprintf(" AND reason_code=$%d", idx)
		args = append(args, filter.ReasonCode)
		idx++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (number ILIKE $%d OR note ILIKE $%d)", idx, idx)
		args = append(args, "%"+filter.Search+"%")
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_adjustments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := filter.Pagination
	query := `SELECT ` + headerColumns + ` FROM stock_adjustments` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var docs []Adjustment
	for rows.Next() {
		doc, err := scanHeader(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (t *txRepo) InsertHeader(ctx context.Context, doc Adjustment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_adjustments (number, location_id, reason_code, status, note, ref_id, created_by, created_at, updated_by, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		doc.Number, doc.LocationID, doc.ReasonCode, string(doc.Status), doc.Note, doc.RefID,
		doc.CreatedBy, doc.CreatedAt, doc.UpdatedBy, doc.UpdatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertLine(ctx context.Context, line Line) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_adjustment_lines (adjustment_id, product_id, qty, unit, unit_cost, note)
VALUES ($1, $2, $3, $4, $5, $6)`,
		line.AdjustmentID, line.ProductID, line.Qty, line.Unit, line.UnitCost, line.Note)
	return err
}

// GetForUpdate locks the header row so concurrent approve and cancel
// serialise on the document.
func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Adjustment, error) {
	doc, err := scanHeader(t.tx.QueryRow(ctx, `SELECT `+headerColumns+`
FROM stock_adjustments WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id))
	if err != nil {
		return Adjustment{}, err
	}
	rows, err := t.tx.Query(ctx, `SELECT id, adjustment_id, product_id, qty, unit, unit_cost, note
FROM stock_adjustment_lines WHERE adjustment_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Adjustment{}, err
	}
	doc.Lines, err = scanLines(rows)
	if err != nil {
		return Adjustment{}, err
	}
	return doc, nil
}

func (t *txRepo) UpdateHeader(ctx context.Context, doc Adjustment) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_adjustments
SET location_id=$2, reason_code=$3, note=$4, updated_by=$5, updated_at=$6
WHERE id=$1`, doc.ID, doc.LocationID, doc.ReasonCode, doc.Note, doc.UpdatedBy, doc.UpdatedAt)
	return err
}

func (t *txRepo) DeleteLines(ctx context.Context, adjustmentID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM stock_adjustment_lines WHERE adjustment_id=$1`, adjustmentID)
	return err
}

func (t *txRepo) SetApproved(ctx context.Context, id int64, actorID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_adjustments
SET status=$2, approved_by=$3, approved_at=$4, updated_by=$3, updated_at=$4
WHERE id=$1`, id, string(StatusApproved), actorID, at)
	return err
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, status Status, actorID int64, at time.Time) error {
	var cancelled any
	if status == StatusCancelled {
		cancelled = at
	}
	_, err := t.tx.Exec(ctx, `UPDATE stock_adjustments
SET status=$2, updated_by=$3, updated_at=$4, cancelled_at=COALESCE($5, cancelled_at)
WHERE id=$1`, id, string(status), actorID, at, cancelled)
	return err
}

func (t *txRepo) SoftDelete(ctx context.Context, id int64, actorID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_adjustments SET deleted_at=$2, updated_by=$3, updated_at=$2 WHERE id=$1`, id, at, actorID)
	return err
}

func scanHeader(row pgx.Row) (Adjustment, error) {
	var doc Adjustment
	var status string
	var approvedBy *int64
	err := row.Scan(&doc.ID, &doc.Number, &doc.LocationID, &doc.ReasonCode, &status, &doc.Note, &doc.RefID,
		&doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedBy, &doc.UpdatedAt, &approvedBy, &doc.ApprovedAt, &doc.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, ErrNotFound
		}
		return Adjustment{}, err
	}
	doc.Status = Status(status)
	if approvedBy != nil {
		doc.ApprovedBy = *approvedBy
	}
	return doc, nil
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.AdjustmentID, &line.ProductID, &line.Qty, &line.Unit, &line.UnitCost, &line.Note); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
