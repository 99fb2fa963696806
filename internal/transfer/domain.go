// Package transfer implements the inter-location stock transfer workflow.
// Posting writes outbound entries at the source; goods then arrive through
// partial receipts that write inbound entries at the destination and track
// damage per line.
package transfer

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a transfer.
type Status string

const (
	// StatusDraft allows edits; no stock has moved yet.
	StatusDraft Status = "DRAFT"
	// StatusInTransit means outbound entries exist at the source and lines
	// await receipt at the destination.
	StatusInTransit Status = "IN_TRANSIT"
	// StatusCompleted means every line reached a terminal state.
	StatusCompleted Status = "COMPLETED"
	// StatusCancelled is terminal.
	StatusCancelled Status = "CANCELLED"
)

// CanEdit reports whether header and lines may still change.
func (s Status) CanEdit() bool { return s == StatusDraft }

// CanPost reports whether the transfer may be posted.
func (s Status) CanPost() bool { return s == StatusDraft }

// CanReceive reports whether line receipts are accepted.
func (s Status) CanReceive() bool { return s == StatusInTransit }

// CanCancel reports whether the transfer may be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusDraft || s == StatusInTransit || s == StatusCompleted
}

// CanDelete reports whether the transfer may be soft-deleted.
func (s Status) CanDelete() bool { return s == StatusDraft }

// LineStatus tracks receipt progress of one line.
type LineStatus string

const (
	// LinePending means nothing has been received or reported damaged.
	LinePending LineStatus = "PENDING"
	// LinePartiallyReceived means some, but not all, of the sent quantity
	// has been accounted for.
	LinePartiallyReceived LineStatus = "PARTIALLY_RECEIVED"
	// LineReceived means the full sent quantity is accounted for.
	LineReceived LineStatus = "RECEIVED"
	// LineDamaged means the whole sent quantity was reported damaged.
	LineDamaged LineStatus = "DAMAGED"
)

// Terminal reports whether the line needs no further receipts.
func (s LineStatus) Terminal() bool { return s == LineReceived || s == LineDamaged }

// DeriveLineStatus applies the receipt progression rule. Damage dominates:
// a fully damaged line is DAMAGED even though its quantities also satisfy the
// RECEIVED condition.
func DeriveLineStatus(sent, received, damaged decimal.Decimal) LineStatus {
	accounted := received.Add(damaged)
	switch {
	case damaged.GreaterThanOrEqual(sent):
		return LineDamaged
	case accounted.GreaterThanOrEqual(sent):
		return LineReceived
	case accounted.IsPositive():
		return LinePartiallyReceived
	default:
		return LinePending
	}
}

// Transfer is the document header.
type Transfer struct {
	ID          int64
	Number      string
	SourceID    int64
	DestID      int64
	Status      Status
	Note        string
	RefID       uuid.UUID
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedBy   int64
	UpdatedAt   time.Time
	PostedAt    *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	Lines       []Line
}

// Line is one transferred product. UnitCost is captured at post time from the
// source's moving average so destination receipts book at the same cost.
type Line struct {
	ID          int64
	TransferID  int64
	ProductID   int64
	Qty         decimal.Decimal
	Unit        string
	UnitCost    decimal.Decimal
	ReceivedQty decimal.Decimal
	DamagedQty  decimal.Decimal
	Status      LineStatus
}

// Remaining is the quantity not yet received or reported damaged.
func (l Line) Remaining() decimal.Decimal {
	return l.Qty.Sub(l.ReceivedQty).Sub(l.DamagedQty)
}

// Workflow errors.
var (
	ErrNotFound         = errors.New("transfer: not found")
	ErrValidation       = errors.New("transfer: validation failed")
	ErrInvalidState     = errors.New("transfer: invalid state for operation")
	ErrAlreadyCancelled = errors.New("transfer: already cancelled")
	ErrLineNotFound     = errors.New("transfer: line not found")
	ErrOverReceipt      = errors.New("transfer: received plus damaged exceeds sent quantity")
)
