// Package adjustment implements the stock adjustment workflow: signed
// corrections against a single location, gated behind an approval step. An
// adjustment never moves stock while in draft; only approval writes ledger
// entries.
package adjustment

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
)

// Status is the lifecycle state of an adjustment.
type Status string

const (
	// StatusDraft allows edits; nothing has been approved yet.
	StatusDraft Status = "DRAFT"
	// StatusApproved means ledger entries exist for every line.
	StatusApproved Status = "APPROVED"
	// StatusCancelled is terminal. Covers both rejected drafts and reversed
	// approvals.
	StatusCancelled Status = "CANCELLED"
)

// CanEdit reports whether header and lines may still change.
func (s Status) CanEdit() bool { return s == StatusDraft }

// CanApprove reports whether the adjustment may be approved.
func (s Status) CanApprove() bool { return s == StatusDraft }

// CanCancel reports whether the adjustment may be cancelled.
func (s Status) CanCancel() bool { return s == StatusDraft || s == StatusApproved }

// CanDelete reports whether the adjustment may be soft-deleted.
func (s Status) CanDelete() bool { return s == StatusDraft }

// Adjustment is the document header. ReasonCode explains why stock is being
// corrected and is mandatory.
type Adjustment struct {
	ID          int64
	Number      string
	LocationID  int64
	ReasonCode  string
	Status      Status
	Note        string
	RefID       uuid.UUID
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedBy   int64
	UpdatedAt   time.Time
	ApprovedBy  int64
	ApprovedAt  *time.Time
	CancelledAt *time.Time
	Lines       []Line
}

// Line is one signed correction. A positive Qty increases stock, a negative
// Qty decreases it.
type Line struct {
	ID           int64
	AdjustmentID int64
	ProductID    int64
	Qty          decimal.Decimal
	Unit         string
	UnitCost     decimal.Decimal
	Note         string
}

// MovementType derives the ledger movement from the line's sign.
func (l Line) MovementType() ledger.MovementType {
	if l.Qty.Sign() > 0 {
		return ledger.MovementAdjustmentIncrease
	}
	return ledger.MovementAdjustmentDecrease
}

// Workflow errors.
var (
	ErrNotFound         = errors.New("adjustment: not found")
	ErrValidation       = errors.New("adjustment: validation failed")
	ErrReasonRequired   = errors.New("adjustment: reason code required")
	ErrInvalidState     = errors.New("adjustment: invalid state for operation")
	ErrAlreadyCancelled = errors.New("adjustment: already cancelled")
)
