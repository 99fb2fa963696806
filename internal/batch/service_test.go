package batch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	batches map[int64]Batch
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{batches: make(map[int64]Batch)}
}

func (m *memoryRepo) WithStore(ctx context.Context, fn func(context.Context, Store) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) InsertBatch(ctx context.Context, b Batch) (Batch, error) {
	for _, existing := range m.batches {
		if existing.ProductID == b.ProductID && existing.BatchNo == b.BatchNo {
			return Batch{}, ErrDuplicateBatch
		}
	}
	m.nextID++
	b.ID = m.nextID
	m.batches[b.ID] = b
	return b, nil
}

func (m *memoryRepo) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	b, ok := m.batches[id]
	if !ok {
		return Batch{}, ErrNotFound
	}
	return b, nil
}

func (m *memoryRepo) FindBatchForUpdate(ctx context.Context, productID int64, batchNo string) (Batch, error) {
	for _, b := range m.batches {
		if b.ProductID == productID && b.BatchNo == batchNo {
			return b, nil
		}
	}
	return Batch{}, ErrNotFound
}

func (m *memoryRepo) UpdateBatch(ctx context.Context, b Batch) error {
	if _, ok := m.batches[b.ID]; !ok {
		return ErrNotFound
	}
	m.batches[b.ID] = b
	return nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Batch, error) {
	return m.GetBatchForUpdate(ctx, id)
}

func (m *memoryRepo) ListByProduct(ctx context.Context, productID int64) ([]Batch, error) {
	var out []Batch
	for _, b := range m.batches {
		if b.ProductID == productID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetExpiring(ctx context.Context, from, to time.Time) ([]Batch, error) {
	var out []Batch
	for _, b := range m.batches {
		if b.Status != StatusActive || b.Expiry == nil {
			continue
		}
		if !b.Expiry.Before(from) && !b.Expiry.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetExpired(ctx context.Context, before time.Time) ([]Batch, error) {
	var out []Batch
	for _, b := range m.batches {
		if b.Status == StatusActive && b.Expiry != nil && b.Expiry.Before(before) {
			out = append(out, b)
		}
	}
	return out, nil
}

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateRejectsDuplicateBatchNo(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{ProductID: 1, BatchNo: "B100", Quantity: qty("10")})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{ProductID: 1, BatchNo: "B100", Quantity: qty("5")})
	require.ErrorIs(t, err, ErrDuplicateBatch)

	// Same number under a different product is fine.
	_, err = svc.Create(ctx, CreateInput{ProductID: 2, BatchNo: "B100", Quantity: qty("5")})
	require.NoError(t, err)
}

func TestAdjustQuantityTogglesStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{ProductID: 1, BatchNo: "B200", Quantity: qty("4")})
	require.NoError(t, err)
	require.Equal(t, StatusActive, created.Status)

	depleted, err := svc.AdjustQuantity(ctx, created.ID, qty("-4"))
	require.NoError(t, err)
	require.True(t, depleted.Quantity.IsZero())
	require.Equal(t, StatusInactive, depleted.Status)

	restored, err := svc.AdjustQuantity(ctx, created.ID, qty("2"))
	require.NoError(t, err)
	require.Equal(t, StatusActive, restored.Status)
}

func TestAdjustQuantityNeverGoesNegative(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{ProductID: 1, BatchNo: "B300", Quantity: qty("3")})
	require.NoError(t, err)

	_, err = svc.AdjustQuantity(ctx, created.ID, qty("-5"))
	require.ErrorIs(t, err, ErrInsufficientBatchQuantity)

	after, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, after.Quantity.Equal(qty("3")))
}

func TestReceiveInTopsUpExistingBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateInput{ProductID: 1, BatchNo: "B400", Quantity: qty("10")})
	require.NoError(t, err)

	var received Batch
	err = repo.WithStore(ctx, func(ctx context.Context, store Store) error {
		var err error
		received, err = svc.ReceiveIn(ctx, store, CreateInput{ProductID: 1, BatchNo: "B400", Quantity: qty("5")})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, received.ID)
	require.True(t, received.Quantity.Equal(qty("15")))
}

func TestGetExpiringWindow(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	mk := func(no string, daysOut int) {
		expiry := now.AddDate(0, 0, daysOut)
		_, err := svc.Create(ctx, CreateInput{ProductID: 1, BatchNo: no, Quantity: qty("1"), Expiry: &expiry})
		require.NoError(t, err)
	}
	mk("SOON", 5)
	mk("LATER", 60)
	mk("PAST", -2)

	expiring, err := svc.GetExpiring(ctx, 30)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	require.Equal(t, "SOON", expiring[0].BatchNo)

	expired, err := svc.GetExpired(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, "PAST", expired[0].BatchNo)
}

func TestDrawInDebitsByNumber(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{ProductID: 9, BatchNo: "B500", Quantity: qty("8")})
	require.NoError(t, err)

	err = repo.WithStore(ctx, func(ctx context.Context, store Store) error {
		_, err := svc.DrawIn(ctx, store, 9, "B500", qty("3"))
		return err
	})
	require.NoError(t, err)

	remaining, err := repo.FindBatchForUpdate(ctx, 9, "B500")
	require.NoError(t, err)
	require.True(t, remaining.Quantity.Equal(qty("5")), fmt.Sprintf("got %s", remaining.Quantity))
}
