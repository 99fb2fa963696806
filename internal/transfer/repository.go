package transfer

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

// TxRepository is the transactional surface of a posting: document operations
// plus the ledger store bound to the same transaction.
type TxRepository interface {
	ledger.Store
	ledger.ReferenceReader

	InsertHeader(ctx context.Context, doc Transfer) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Transfer, error)
	UpdateHeader(ctx context.Context, doc Transfer) error
	UpdateLine(ctx context.Context, line Line) error
	DeleteLines(ctx context.Context, transferID int64) error
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

const headerColumns = `id, number, source_id, dest_id, status, note, ref_id, created_by, created_at, updated_by, updated_at, posted_at, completed_at, cancelled_at`

const lineColumns = `id, transfer_id, product_id, qty, unit, unit_cost, received_qty, damaged_qty, status`

// Get returns one transfer with lines, excluding soft-deleted rows.
func (r *Repository) Get(ctx context.Context, id int64) (Transfer, error) {
	doc, err := scanHeader(r.pool.QueryRow(ctx, `SELECT `+headerColumns+`
FROM stock_transfers WHERE id=$1 AND deleted_at IS NULL`, id))
	if err != nil {
		return Transfer{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+lineColumns+`
FROM stock_transfer_lines WHERE transfer_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Transfer{}, err
	}
	doc.Lines, err = scanLines(rows)
	if err != nil {
		return Transfer{}, err
	}
	return doc, nil
}

// List returns transfers matching the filter plus a total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Transfer, int, error) {
	where := ` WHERE deleted_at IS NULL`
	args := []any{}
	idx := 1
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status=$%d", idx)
		args = append(args, string(filter.Status))
		idx++
	}
	if filter.SourceID != 0 {
		where += fmt.Sprintf(" AND source_id=$%d", idx)
		args = append(args, filter.SourceID)
		idx++
	}
	if filter.DestID != 0 {
		where += fmt.Sprintf(" AND dest_id=$%d", idx)
		args = append(args, filter.DestID)
		idx++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (number ILIKE $%d OR note ILIKE $%d)", idx, idx)
		args = append(args, "%"+filter.Search+"%")
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_transfers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := filter.Pagination
	query := `SELECT ` + headerColumns + ` FROM stock_transfers` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var docs []Transfer
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

func (t *txRepo) InsertHeader(ctx context.Context, doc Transfer) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_transfers (number, source_id, dest_id, status, note, ref_id, created_by, created_at, updated_by, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		doc.Number, doc.SourceID, doc.DestID, string(doc.Status), doc.Note, doc.RefID,
		doc.CreatedBy, doc.CreatedAt, doc.UpdatedBy, doc.UpdatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_transfer_lines (transfer_id, product_id, qty, unit, unit_cost, received_qty, damaged_qty, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		line.TransferID, line.ProductID, line.Qty, line.Unit, line.UnitCost, line.ReceivedQty, line.DamagedQty, string(line.Status)).Scan(&id)
	return id, err
}

// GetForUpdate locks the header row so concurrent post, receive and cancel
// serialise on the document.
func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Transfer, error) {
	doc, err := scanHeader(t.tx.QueryRow(ctx, `SELECT `+headerColumns+`
FROM stock_transfers WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id))
	if err != nil {
		return Transfer{}, err
	}
	rows, err := t.tx.Query(ctx, `SELECT `+lineColumns+`
FROM stock_transfer_lines WHERE transfer_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Transfer{}, err
	}
	doc.Lines, err = scanLines(rows)
	if err != nil {
		return Transfer{}, err
	}
	return doc, nil
}

func (t *txRepo) UpdateHeader(ctx context.Context, doc Transfer) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_transfers
SET source_id=$2, dest_id=$3, note=$4, updated_by=$5, updated_at=$6
WHERE id=$1`, doc.ID, doc.SourceID, doc.DestID, doc.Note, doc.UpdatedBy, doc.UpdatedAt)
	return err
}

func (t *txRepo) UpdateLine(ctx context.Context, line Line) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_transfer_lines
SET unit_cost=$2, received_qty=$3, damaged_qty=$4, status=$5
WHERE id=$1`, line.ID, line.UnitCost, line.ReceivedQty, line.DamagedQty, string(line.Status))
	return err
}

func (t *txRepo) DeleteLines(ctx context.Context, transferID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM stock_transfer_lines WHERE transfer_id=$1`, transferID)
	return err
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, status Status, actorID int64, at time.Time) error {
	var posted, completed, cancelled any
	switch status {
	case StatusInTransit:
		posted = at
	case StatusCompleted:
		completed = at
	case StatusCancelled:
		cancelled = at
	}
	_, err := t.tx.Exec(ctx, `UPDATE stock_transfers
SET status=$2, updated_by=$3, updated_at=$4,
    posted_at=COALESCE($5, posted_at), completed_at=COALESCE($6, completed_at), cancelled_at=COALESCE($7, cancelled_at)
WHERE id=$1`, id, string(status), actorID, at, posted, completed, cancelled)
	return err
}

func (t *txRepo) SoftDelete(ctx context.Context, id int64, actorID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_transfers SET deleted_at=$2, updated_by=$3, updated_at=$2 WHERE id=$1`, id, at, actorID)
	return err
}

func scanHeader(row pgx.Row) (Transfer, error) {
	var doc Transfer
	var status string
	err := row.Scan(&doc.ID, &doc.Number, &doc.SourceID, &doc.DestID, &status, &doc.Note, &doc.RefID,
		&doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedBy, &doc.UpdatedAt, &doc.PostedAt, &doc.CompletedAt, &doc.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrNotFound
		}
		return Transfer{}, err
	}
	doc.Status = Status(status)
	return doc, nil
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		var status string
		if err := rows.Scan(&line.ID, &line.TransferID, &line.ProductID, &line.Qty, &line.Unit, &line.UnitCost,
			&line.ReceivedQty, &line.DamagedQty, &status); err != nil {
			return nil, err
		}
		line.Status = LineStatus(status)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
