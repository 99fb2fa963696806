package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the transactional surface Append writes through. Implementations
// bind it to the caller's transaction so a document post spans the status
// change and every ledger write atomically.
type Store interface {
	GetLevelForUpdate(ctx context.Context, productID, locationID int64) (Level, error)
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	UpsertLevel(ctx context.Context, level Level) error
}

// ReaderPort abstracts the read-side queries used by Service.
type ReaderPort interface {
	GetLevel(ctx context.Context, productID, locationID int64) (Level, error)
	GetHistory(ctx context.Context, filter HistoryFilter) ([]Entry, error)
	GetByReference(ctx context.Context, refType string, refID uuid.UUID) ([]Entry, error)
}

// ReferenceReader reads a document's entries inside the caller's transaction.
// Document workflows use it to build compensating movements on cancel.
type ReferenceReader interface {
	GetByReference(ctx context.Context, refType string, refID uuid.UUID) ([]Entry, error)
}

// Service owns movement policy: balance arithmetic, the negative-stock guard
// and moving-average cost.
type Service struct {
	reader   ReaderPort
	allowNeg bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(reader ReaderPort, cfg ServiceConfig) *Service {
	return &Service{reader: reader, allowNeg: cfg.AllowNegativeStock}
}

// Append records one movement and updates the stock level inside the caller's
// transaction. The new balance is previous balance plus the signed quantity;
// a balance that would go negative fails with ErrInsufficientStock unless
// negative stock is allowed by configuration.
func (s *Service) Append(ctx context.Context, store Store, in AppendInput) (Entry, error) {
	if in.ProductID == 0 || in.LocationID == 0 {
		return Entry{}, ErrInvalidMovement
	}
	if !in.MovementType.IsValid() {
		return Entry{}, ErrInvalidMovement
	}
	if in.Qty.IsZero() {
		return Entry{}, ErrInvalidMovement
	}
	if in.Qty.Sign() != in.MovementType.Direction() {
		return Entry{}, ErrInvalidMovement
	}
	if in.UnitCost.IsNegative() {
		return Entry{}, ErrInvalidUnitCost
	}
	if in.RefType == "" {
		return Entry{}, ErrInvalidMovement
	}

	level, err := store.GetLevelForUpdate(ctx, in.ProductID, in.LocationID)
	if err != nil && !errors.Is(err, ErrLevelNotFound) {
		return Entry{}, err
	}
	if errors.Is(err, ErrLevelNotFound) {
		level = Level{ProductID: in.ProductID, LocationID: in.LocationID}
	}

	newQty := level.Quantity.Add(in.Qty)
	if newQty.IsNegative() && !s.allowNeg {
		return Entry{}, ErrInsufficientStock
	}

	unitCost := in.UnitCost
	newAvg := level.AvgCost
	if in.Qty.IsPositive() {
		totalCost := level.Quantity.Mul(level.AvgCost).Add(in.Qty.Mul(unitCost))
		if newQty.IsPositive() {
			newAvg = totalCost.Div(newQty).Round(4)
		} else {
			newAvg = decimal.Zero
		}
	} else {
		// Outbound movements relieve stock at the current moving average.
		if unitCost.IsZero() {
			unitCost = level.AvgCost
		}
		if !newQty.IsPositive() {
			newAvg = decimal.Zero
		}
	}

	now := time.Now().UTC()
	entry := Entry{
		ProductID:    in.ProductID,
		LocationID:   in.LocationID,
		MovementType: in.MovementType,
		Qty:          in.Qty,
		UnitCost:     unitCost,
		Balance:      newQty,
		RefType:      in.RefType,
		RefID:        in.RefID,
		CreatedBy:    in.ActorID,
		CreatedAt:    now,
	}
	entry, err = store.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}

	level.Quantity = newQty
	level.AvgCost = newAvg
	level.UpdatedAt = now
	if err := store.UpsertLevel(ctx, level); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// GetBalance returns the current balance for a product at a location, or
// zero when no movement has been recorded yet.
func (s *Service) GetBalance(ctx context.Context, productID, locationID int64) (decimal.Decimal, error) {
	level, err := s.reader.GetLevel(ctx, productID, locationID)
	if err != nil {
		if errors.Is(err, ErrLevelNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return level.Quantity, nil
}

// GetHistory lists ledger entries ascending by creation time.
func (s *Service) GetHistory(ctx context.Context, filter HistoryFilter) ([]Entry, error) {
	if filter.ProductID == 0 || filter.LocationID == 0 {
		return nil, ErrInvalidMovement
	}
	return s.reader.GetHistory(ctx, filter)
}

// GetByReference lists every entry written for a document. Cancellation uses
// this to build compensating entries.
func (s *Service) GetByReference(ctx context.Context, refType string, refID uuid.UUID) ([]Entry, error) {
	return s.reader.GetByReference(ctx, refType, refID)
}
