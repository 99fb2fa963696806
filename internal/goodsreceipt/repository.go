package goodsreceipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/batch"
	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/platform/db"
)

// TxRepository is the transactional surface of a posting. It carries the
// document operations together with the ledger and batch stores bound to the
// same transaction, so a post or cancel commits as one unit.
type TxRepository interface {
	ledger.Store
	ledger.ReferenceReader
	batch.Store

	InsertHeader(ctx context.Context, doc GoodsReceipt) (int64, error)
	InsertLine(ctx context.Context, line Line) error
	GetForUpdate(ctx context.Context, id int64) (GoodsReceipt, error)
	UpdateHeader(ctx context.Context, doc GoodsReceipt) error
	DeleteLines(ctx context.Context, receiptID int64) error
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

// Aliases keep the embedded store field names distinct.
type (
	ledgerStore = ledger.TxStore
	batchStore  = batch.TxStore
)

type txRepo struct {
	tx pgx.Tx
	*ledgerStore
	*batchStore
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, ledgerStore: ledger.NewTxStore(tx), batchStore: batch.NewTxStore(tx)})
	})
}

const headerColumns = `id, number, supplier_id, location_id, status, received_at, note, ref_id, created_by, created_at, updated_by, updated_at, posted_at, cancelled_at`

// Get returns one receipt with lines, excluding soft-deleted rows.
func (r *Repository) Get(ctx context.Context, id int64) (GoodsReceipt, error) {
	doc, err := scanHeader(r.pool.QueryRow(ctx, `SELECT `+headerColumns+`
FROM goods_receipts WHERE id=$1 AND deleted_at IS NULL`, id))
	if err != nil {
		return GoodsReceipt{}, err
	}
	doc.Lines, err = r.lines(ctx, r.pool, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	return doc, nil
}

// List returns receipts matching the filter plus a total count. Lines are not
// hydrated; listings only need headers.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]GoodsReceipt, int, error) {
	where := ` WHERE deleted_at IS NULL`
	args := []any{}
	idx := 1
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status=$%d", idx)
		args = append(args, string(filter.Status))
		idx++
	}
	if filter.SupplierID != 0 {
		where += fmt.Sprintf(" AND supplier_id=$%d", idx)
		args = append(args, filter.SupplierID)
		idx++
	}
	if filter.LocationID != 0 {
		where += fmt.Sprintf(" AND location_id=$%d", idx)
		args = append(args, filter.LocationID)
		idx++
	}
	if !filter.From.IsZero() {
		where += fmt.Sprintf(" AND received_at >= $%d", idx)
		args = append(args, filter.From)
		idx++
	}
	if !filter.To.IsZero() {
		where += fmt.Sprintf(" AND received_at <= $%d", idx)
		args = append(args, filter.To)
		idx++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (number ILIKE $%d OR note ILIKE $%d)", idx, idx)
		args = append(args, "%"+filter.Search+"%")
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM goods_receipts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := filter.Pagination
	query := `SELECT ` + headerColumns + ` FROM goods_receipts` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var docs []GoodsReceipt
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

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) lines(ctx context.Context, q rowQuerier, receiptID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, receipt_id, product_id, qty, unit, unit_cost, batch_no, expiry_date
FROM goods_receipt_lines WHERE receipt_id=$1 ORDER BY id ASC`, receiptID)
	if err != nil {
		return nil, err
	}
	return scanLines(rows)
}

func (t *txRepo) InsertHeader(ctx context.Context, doc GoodsReceipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_receipts (number, supplier_id, location_id, status, received_at, note, ref_id, created_by, created_at, updated_by, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		doc.Number, doc.SupplierID, doc.LocationID, string(doc.Status), doc.ReceivedAt, doc.Note, doc.RefID,
		doc.CreatedBy, doc.CreatedAt, doc.UpdatedBy, doc.UpdatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertLine(ctx context.Context, line Line) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO goods_receipt_lines (receipt_id, product_id, qty, unit, unit_cost, batch_no, expiry_date)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		line.ReceiptID, line.ProductID, line.Qty, line.Unit, line.UnitCost, line.BatchNo, line.Expiry)
	return err
}

// GetForUpdate locks the header row for the rest of the transaction so
// concurrent post and cancel serialise on the document.
func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (GoodsReceipt, error) {
	doc, err := scanHeader(t.tx.QueryRow(ctx, `SELECT `+headerColumns+`
FROM goods_receipts WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id))
	if err != nil {
		return GoodsReceipt{}, err
	}
	rows, err := t.tx.Query(ctx, `SELECT id, receipt_id, product_id, qty, unit, unit_cost, batch_no, expiry_date
FROM goods_receipt_lines WHERE receipt_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	doc.Lines, err = scanLines(rows)
	if err != nil {
		return GoodsReceipt{}, err
	}
	return doc, nil
}

func (t *txRepo) UpdateHeader(ctx context.Context, doc GoodsReceipt) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_receipts
SET supplier_id=$2, location_id=$3, received_at=$4, note=$5, updated_by=$6, updated_at=$7
WHERE id=$1`, doc.ID, doc.SupplierID, doc.LocationID, doc.ReceivedAt, doc.Note, doc.UpdatedBy, doc.UpdatedAt)
	return err
}

func (t *txRepo) DeleteLines(ctx context.Context, receiptID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM goods_receipt_lines WHERE receipt_id=$1`, receiptID)
	return err
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, status Status, actorID int64, at time.Time) error {
	var posted, cancelled any
	switch status {
	case StatusPosted:
		posted = at
	case StatusCancelled:
		cancelled = at
	}
	_, err := t.tx.Exec(ctx, `UPDATE goods_receipts
SET status=$2, updated_by=$3, updated_at=$4, posted_at=COALESCE($5, posted_at), cancelled_at=COALESCE($6, cancelled_at)
WHERE id=$1`, id, string(status), actorID, at, posted, cancelled)
	return err
}

func (t *txRepo) SoftDelete(ctx context.Context, id int64, actorID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_receipts SET deleted_at=$2, updated_by=$3, updated_at=$2 WHERE id=$1`, id, at, actorID)
	return err
}

func scanHeader(row pgx.Row) (GoodsReceipt, error) {
	var doc GoodsReceipt
	var status string
	err := row.Scan(&doc.ID, &doc.Number, &doc.SupplierID, &doc.LocationID, &status, &doc.ReceivedAt, &doc.Note,
		&doc.RefID, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedBy, &doc.UpdatedAt, &doc.PostedAt, &doc.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, ErrNotFound
		}
		return GoodsReceipt{}, err
	}
	doc.Status = Status(status)
	return doc, nil
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.ReceiptID, &line.ProductID, &line.Qty, &line.Unit, &line.UnitCost, &line.BatchNo, &line.Expiry); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
