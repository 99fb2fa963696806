// Package ledger implements the append-only stock ledger and the derived
// stock level per (product, location). Document workflows are the only
// writers; every movement goes through the single Append primitive so the
// running balance is computed in exactly one place.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementReceipt represents inbound goods from a supplier.
	MovementReceipt MovementType = "RECEIPT"
	// MovementIssue represents an outbound issue of stock.
	MovementIssue MovementType = "ISSUE"
	// MovementTransferOut decreases stock at the transfer source.
	MovementTransferOut MovementType = "TRANSFER_OUT"
	// MovementTransferIn increases stock at the transfer destination.
	MovementTransferIn MovementType = "TRANSFER_IN"
	// MovementAdjustmentIncrease is an approved upward correction.
	MovementAdjustmentIncrease MovementType = "ADJUSTMENT_INCREASE"
	// MovementAdjustmentDecrease is an approved downward correction.
	MovementAdjustmentDecrease MovementType = "ADJUSTMENT_DECREASE"
	// MovementReturnOut sends goods back to a supplier.
	MovementReturnOut MovementType = "RETURN_OUT"
	// MovementReplaceIn receives replacement goods from a supplier.
	MovementReplaceIn MovementType = "REPLACE_IN"
)

// IsValid reports whether the movement type is known.
func (m MovementType) IsValid() bool {
	switch m {
	case MovementReceipt, MovementIssue, MovementTransferOut, MovementTransferIn,
		MovementAdjustmentIncrease, MovementAdjustmentDecrease, MovementReturnOut, MovementReplaceIn:
		return true
	default:
		return false
	}
}

// Direction returns +1 for inbound movements and -1 for outbound ones.
func (m MovementType) Direction() int {
	switch m {
	case MovementReceipt, MovementTransferIn, MovementAdjustmentIncrease, MovementReplaceIn:
		return 1
	default:
		return -1
	}
}

// Compensating returns the movement type used by the entry that reverses m
// when a posted document is cancelled.
func (m MovementType) Compensating() MovementType {
	switch m {
	case MovementReceipt:
		return MovementIssue
	case MovementIssue:
		return MovementReceipt
	case MovementTransferOut:
		return MovementTransferIn
	case MovementTransferIn:
		return MovementTransferOut
	case MovementAdjustmentIncrease:
		return MovementAdjustmentDecrease
	case MovementAdjustmentDecrease:
		return MovementAdjustmentIncrease
	case MovementReturnOut:
		return MovementReplaceIn
	case MovementReplaceIn:
		return MovementReturnOut
	default:
		return m
	}
}

// Entry is one immutable quantity movement. Entries are never updated or
// deleted; corrections are new entries.
type Entry struct {
	ID           int64
	ProductID    int64
	LocationID   int64
	MovementType MovementType
	Qty          decimal.Decimal
	UnitCost     decimal.Decimal
	Balance      decimal.Decimal
	RefType      string
	RefID        uuid.UUID
	CreatedBy    int64
	CreatedAt    time.Time
}

// Level is the materialised current quantity per (product, location). It is
// maintained only inside Append, in the same transaction as the entry insert.
type Level struct {
	ProductID  int64
	LocationID int64
	Quantity   decimal.Decimal
	AvgCost    decimal.Decimal
	UpdatedAt  time.Time
}

// AppendInput describes a single movement to record.
type AppendInput struct {
	ProductID    int64
	LocationID   int64
	MovementType MovementType
	Qty          decimal.Decimal
	UnitCost     decimal.Decimal
	RefType      string
	RefID        uuid.UUID
	ActorID      int64
}

// HistoryFilter bounds a ledger history query.
type HistoryFilter struct {
	ProductID  int64
	LocationID int64
	From       time.Time
	To         time.Time
	Limit      int
}

var (
	// ErrInsufficientStock is returned when a movement would drive a balance
	// negative and negative stock is not allowed.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	// ErrInvalidMovement indicates an unknown movement type or a quantity
	// whose sign contradicts the movement direction.
	ErrInvalidMovement = errors.New("ledger: invalid movement")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("ledger: unit cost must be >= 0")
	// ErrLevelNotFound indicates a missing stock level row.
	ErrLevelNotFound = errors.New("ledger: stock level not found")
)
