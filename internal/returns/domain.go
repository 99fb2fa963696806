// Package returns implements the supplier-facing reversal workflow: goods
// returned from a location to a supplier, and the paired replacement coming
// back in. Both document kinds share one state machine; the kind decides the
// movement direction and the numbering prefix.
package returns

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
)

// Kind separates the two document flavours.
type Kind string

const (
	// KindReturn sends goods back to the supplier, decreasing stock.
	KindReturn Kind = "RETURN"
	// KindReplace books replacement goods from the supplier, increasing
	// stock.
	KindReplace Kind = "REPLACE"
)

// IsValid reports whether the kind is known.
func (k Kind) IsValid() bool { return k == KindReturn || k == KindReplace }

// DocType returns the numbering sequence key for the kind.
func (k Kind) DocType() string {
	if k == KindReplace {
		return "REP"
	}
	return "RET"
}

// MovementType returns the ledger movement the kind posts.
func (k Kind) MovementType() ledger.MovementType {
	if k == KindReplace {
		return ledger.MovementReplaceIn
	}
	return ledger.MovementReturnOut
}

// RelatedDocType names the kind of document a header may reference: a return
// points at the goods receipt it reverses, a replacement at the return it
// answers. The reference is informational and never mutates the target.
func (k Kind) RelatedDocType() string {
	if k == KindReplace {
		return "RET"
	}
	return "GRN"
}

// Status is the lifecycle state of a return or replacement.
type Status string

const (
	// StatusDraft allows edits; no stock has moved yet.
	StatusDraft Status = "DRAFT"
	// StatusPosted means ledger entries exist for every line.
	StatusPosted Status = "POSTED"
	// StatusCancelled is terminal.
	StatusCancelled Status = "CANCELLED"
)

// CanEdit reports whether header and lines may still change.
func (s Status) CanEdit() bool { return s == StatusDraft }

// CanPost reports whether the document may be posted.
func (s Status) CanPost() bool { return s == StatusDraft }

// CanCancel reports whether the document may be cancelled.
func (s Status) CanCancel() bool { return s == StatusDraft || s == StatusPosted }

// CanDelete reports whether the document may be soft-deleted.
func (s Status) CanDelete() bool { return s == StatusDraft }

// Document is the shared header for returns and replacements.
type Document struct {
	ID          int64
	Kind        Kind
	Number      string
	SupplierID  int64
	LocationID  int64
	RelatedID   *int64
	Status      Status
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

// Line is one returned or replaced product. Qty is always positive; the kind
// decides the ledger sign. BatchNo ties the movement to a product batch.
type Line struct {
	ID         int64
	DocumentID int64
	ProductID  int64
	Qty        decimal.Decimal
	Unit       string
	UnitCost   decimal.Decimal
	BatchNo    string
	Expiry     *time.Time
	Reason     string
}

// Workflow errors.
var (
	ErrNotFound         = errors.New("returns: not found")
	ErrValidation       = errors.New("returns: validation failed")
	ErrInvalidKind      = errors.New("returns: invalid document kind")
	ErrInvalidState     = errors.New("returns: invalid state for operation")
	ErrAlreadyCancelled = errors.New("returns: already cancelled")
)
