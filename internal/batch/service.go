package batch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the transactional surface for batch mutations. Workflow
// repositories bind it to their posting transaction.
type Store interface {
	InsertBatch(ctx context.Context, b Batch) (Batch, error)
	GetBatchForUpdate(ctx context.Context, id int64) (Batch, error)
	FindBatchForUpdate(ctx context.Context, productID int64, batchNo string) (Batch, error)
	UpdateBatch(ctx context.Context, b Batch) error
}

// RepositoryPort is the persistence surface used by Service.
type RepositoryPort interface {
	WithStore(ctx context.Context, fn func(context.Context, Store) error) error
	Get(ctx context.Context, id int64) (Batch, error)
	ListByProduct(ctx context.Context, productID int64) ([]Batch, error)
	GetExpiring(ctx context.Context, from, to time.Time) ([]Batch, error)
	GetExpired(ctx context.Context, before time.Time) ([]Batch, error)
}

// Service owns batch rules: number uniqueness per product, the non-negative
// quantity invariant and automatic status toggling.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create registers a new batch for a product.
func (s *Service) Create(ctx context.Context, in CreateInput) (Batch, error) {
	var created Batch
	err := s.repo.WithStore(ctx, func(ctx context.Context, store Store) error {
		var err error
		created, err = s.CreateIn(ctx, store, in)
		return err
	})
	if err != nil {
		return Batch{}, err
	}
	return created, nil
}

// CreateIn registers a new batch inside the caller's transaction.
func (s *Service) CreateIn(ctx context.Context, store Store, in CreateInput) (Batch, error) {
	in.BatchNo = strings.TrimSpace(in.BatchNo)
	if in.ProductID == 0 || in.BatchNo == "" {
		return Batch{}, ErrValidation
	}
	if in.Quantity.IsNegative() {
		return Batch{}, ErrValidation
	}
	b := Batch{
		ProductID: in.ProductID,
		BatchNo:   in.BatchNo,
		Quantity:  in.Quantity,
		Unit:      in.Unit,
		Expiry:    in.Expiry,
		Status:    statusFor(in.Quantity),
	}
	return store.InsertBatch(ctx, b)
}

// AdjustQuantity applies a signed delta to a batch. The resulting quantity
// must stay >= 0; status follows the new quantity.
func (s *Service) AdjustQuantity(ctx context.Context, batchID int64, delta decimal.Decimal) (Batch, error) {
	var adjusted Batch
	err := s.repo.WithStore(ctx, func(ctx context.Context, store Store) error {
		var err error
		adjusted, err = s.AdjustQuantityIn(ctx, store, batchID, delta)
		return err
	})
	if err != nil {
		return Batch{}, err
	}
	return adjusted, nil
}

// AdjustQuantityIn applies a signed delta inside the caller's transaction.
func (s *Service) AdjustQuantityIn(ctx context.Context, store Store, batchID int64, delta decimal.Decimal) (Batch, error) {
	if delta.IsZero() {
		return Batch{}, ErrValidation
	}
	b, err := store.GetBatchForUpdate(ctx, batchID)
	if err != nil {
		return Batch{}, err
	}
	newQty := b.Quantity.Add(delta)
	if newQty.IsNegative() {
		return Batch{}, ErrInsufficientBatchQuantity
	}
	b.Quantity = newQty
	b.Status = statusFor(newQty)
	b.UpdatedAt = s.now().UTC()
	if err := store.UpdateBatch(ctx, b); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// ReceiveIn tops up an existing batch or creates it, used by receipt and
// replacement postings inside their transaction.
func (s *Service) ReceiveIn(ctx context.Context, store Store, in CreateInput) (Batch, error) {
	if in.Quantity.Sign() <= 0 {
		return Batch{}, ErrValidation
	}
	existing, err := store.FindBatchForUpdate(ctx, in.ProductID, strings.TrimSpace(in.BatchNo))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.CreateIn(ctx, store, in)
		}
		return Batch{}, err
	}
	return s.AdjustQuantityIn(ctx, store, existing.ID, in.Quantity)
}

// DrawIn debits a batch by number, used by return postings.
func (s *Service) DrawIn(ctx context.Context, store Store, productID int64, batchNo string, qty decimal.Decimal) (Batch, error) {
	if qty.Sign() <= 0 {
		return Batch{}, ErrValidation
	}
	b, err := store.FindBatchForUpdate(ctx, productID, strings.TrimSpace(batchNo))
	if err != nil {
		return Batch{}, err
	}
	return s.AdjustQuantityIn(ctx, store, b.ID, qty.Neg())
}

// Get returns one batch.
func (s *Service) Get(ctx context.Context, id int64) (Batch, error) {
	return s.repo.Get(ctx, id)
}

// ListByProduct lists all batches of a product.
func (s *Service) ListByProduct(ctx context.Context, productID int64) ([]Batch, error) {
	if productID == 0 {
		return nil, ErrValidation
	}
	return s.repo.ListByProduct(ctx, productID)
}

// GetExpiring lists active batches expiring within the given number of days.
func (s *Service) GetExpiring(ctx context.Context, withinDays int) ([]Batch, error) {
	if withinDays < 0 {
		return nil, ErrValidation
	}
	today := startOfDay(s.now().UTC())
	return s.repo.GetExpiring(ctx, today, today.AddDate(0, 0, withinDays))
}

// GetExpired lists active batches whose expiry has passed.
func (s *Service) GetExpired(ctx context.Context) ([]Batch, error) {
	return s.repo.GetExpired(ctx, startOfDay(s.now().UTC()))
}

func statusFor(qty decimal.Decimal) Status {
	if qty.IsPositive() {
		return StatusActive
	}
	return StatusInactive
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
