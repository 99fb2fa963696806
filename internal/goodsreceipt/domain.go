// Package goodsreceipt implements the goods received note workflow: stock
// arriving from a supplier into a location. Posting a receipt appends one
// inbound ledger entry per line and tops up product batches for lines that
// carry a batch number.
package goodsreceipt

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a goods receipt.
type Status string

const (
	// StatusDraft allows edits; no stock has moved yet.
	StatusDraft Status = "DRAFT"
	// StatusPosted means ledger entries exist for every line.
	StatusPosted Status = "POSTED"
	// StatusCancelled is terminal. A posted receipt that was cancelled keeps
	// its original entries plus compensating ones.
	StatusCancelled Status = "CANCELLED"
)

// CanEdit reports whether header and lines may still change.
func (s Status) CanEdit() bool { return s == StatusDraft }

// CanPost reports whether the receipt may be posted.
func (s Status) CanPost() bool { return s == StatusDraft }

// CanCancel reports whether the receipt may be cancelled.
func (s Status) CanCancel() bool { return s == StatusDraft || s == StatusPosted }

// CanDelete reports whether the receipt may be soft-deleted.
func (s Status) CanDelete() bool { return s == StatusDraft }

// GoodsReceipt is the document header.
type GoodsReceipt struct {
	ID          int64
	Number      string
	SupplierID  int64
	LocationID  int64
	Status      Status
	ReceivedAt  time.Time
	Note        string
	RefID       uuid.UUID
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedBy   int64
	UpdatedAt   time.Time
	PostedAt    *time.Time
	CancelledAt *time.Time
	Lines       []Line
}

// Line is one received product. BatchNo is set when the product is batch
// tracked; posting then credits the matching product batch.
type Line struct {
	ID        int64
	ReceiptID int64
	ProductID int64
	Qty       decimal.Decimal
	Unit      string
	UnitCost  decimal.Decimal
	BatchNo   string
	Expiry    *time.Time
}

// Total is the receipt value at line costs.
func (g GoodsReceipt) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range g.Lines {
		total = total.Add(line.Qty.Mul(line.UnitCost))
	}
	return total
}

// Workflow errors.
var (
	ErrNotFound         = errors.New("goodsreceipt: not found")
	ErrValidation       = errors.New("goodsreceipt: validation failed")
	ErrInvalidState     = errors.New("goodsreceipt: invalid state for operation")
	ErrAlreadyCancelled = errors.New("goodsreceipt: already cancelled")
)
