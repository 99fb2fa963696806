package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	levels  map[string]Level
	entries []Entry
	nextID  int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{levels: make(map[string]Level)}
}

func levelKey(productID, locationID int64) string {
	return fmt.Sprintf("%d:%d", productID, locationID)
}

func (m *memoryStore) GetLevelForUpdate(ctx context.Context, productID, locationID int64) (Level, error) {
	if level, ok := m.levels[levelKey(productID, locationID)]; ok {
		return level, nil
	}
	return Level{}, ErrLevelNotFound
}

func (m *memoryStore) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	m.nextID++
	entry.ID = m.nextID
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *memoryStore) UpsertLevel(ctx context.Context, level Level) error {
	m.levels[levelKey(level.ProductID, level.LocationID)] = level
	return nil
}

func (m *memoryStore) GetLevel(ctx context.Context, productID, locationID int64) (Level, error) {
	return m.GetLevelForUpdate(ctx, productID, locationID)
}

func (m *memoryStore) GetHistory(ctx context.Context, filter HistoryFilter) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if e.ProductID == filter.ProductID && e.LocationID == filter.LocationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryStore) GetByReference(ctx context.Context, refType string, refID uuid.UUID) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if e.RefType == refType && e.RefID == refID {
			out = append(out, e)
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func appendEntry(t *testing.T, svc *Service, store *memoryStore, movement MovementType, qty, cost string) Entry {
	t.Helper()
	entry, err := svc.Append(context.Background(), store, AppendInput{
		ProductID:    1,
		LocationID:   1,
		MovementType: movement,
		Qty:          dec(qty),
		UnitCost:     dec(cost),
		RefType:      "TEST",
		RefID:        uuid.New(),
		ActorID:      7,
	})
	require.NoError(t, err)
	return entry
}

func TestAppendRunningBalance(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, ServiceConfig{})

	first := appendEntry(t, svc, store, MovementReceipt, "50", "10")
	require.True(t, first.Balance.Equal(dec("50")))

	second := appendEntry(t, svc, store, MovementIssue, "-20", "0")
	require.True(t, second.Balance.Equal(dec("30")))

	// Replaying entries in order must reproduce the level quantity.
	sum := decimal.Zero
	for _, e := range store.entries {
		sum = sum.Add(e.Qty)
	}
	level := store.levels[levelKey(1, 1)]
	require.True(t, sum.Equal(level.Quantity))
	require.True(t, level.Quantity.Equal(dec("30")))
}

func TestAppendMovingAverageCost(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, ServiceConfig{})

	appendEntry(t, svc, store, MovementReceipt, "10", "100")
	appendEntry(t, svc, store, MovementReceipt, "5", "120")

	level := store.levels[levelKey(1, 1)]
	require.True(t, level.AvgCost.Equal(dec("106.6667")), "got %s", level.AvgCost)

	// Outbound relieves at the moving average, not the requested cost.
	out := appendEntry(t, svc, store, MovementIssue, "-8", "0")
	require.True(t, out.UnitCost.Equal(dec("106.6667")))
	level = store.levels[levelKey(1, 1)]
	require.True(t, level.AvgCost.Equal(dec("106.6667")))
}

func TestAppendNegativeStockGuard(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, ServiceConfig{})

	_, err := svc.Append(context.Background(), store, AppendInput{
		ProductID:    1,
		LocationID:   1,
		MovementType: MovementIssue,
		Qty:          dec("-1"),
		RefType:      "TEST",
		RefID:        uuid.New(),
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, store.entries)
}

func TestAppendNegativeStockAllowedByPolicy(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, ServiceConfig{AllowNegativeStock: true})

	entry, err := svc.Append(context.Background(), store, AppendInput{
		ProductID:    1,
		LocationID:   1,
		MovementType: MovementIssue,
		Qty:          dec("-3"),
		RefType:      "TEST",
		RefID:        uuid.New(),
	})
	require.NoError(t, err)
	require.True(t, entry.Balance.Equal(dec("-3")))
}

func TestAppendRejectsSignMismatch(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, ServiceConfig{})

	_, err := svc.Append(context.Background(), store, AppendInput{
		ProductID:    1,
		LocationID:   1,
		MovementType: MovementReceipt,
		Qty:          dec("-5"),
		RefType:      "TEST",
		RefID:        uuid.New(),
	})
	require.ErrorIs(t, err, ErrInvalidMovement)

	_, err = svc.Append(context.Background(), store, AppendInput{
		ProductID:    1,
		LocationID:   1,
		MovementType: MovementTransferOut,
		Qty:          dec("5"),
		RefType:      "TEST",
		RefID:        uuid.New(),
	})
	require.ErrorIs(t, err, ErrInvalidMovement)
}

func TestGetBalanceDefaultsToZero(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, ServiceConfig{})

	balance, err := svc.GetBalance(context.Background(), 42, 42)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}

func TestCompensatingMovementTypes(t *testing.T) {
	cases := map[MovementType]MovementType{
		MovementReceipt:            MovementIssue,
		MovementIssue:              MovementReceipt,
		MovementTransferOut:        MovementTransferIn,
		MovementTransferIn:         MovementTransferOut,
		MovementAdjustmentIncrease: MovementAdjustmentDecrease,
		MovementAdjustmentDecrease: MovementAdjustmentIncrease,
		MovementReturnOut:          MovementReplaceIn,
		MovementReplaceIn:          MovementReturnOut,
	}
	for movement, want := range cases {
		require.Equal(t, want, movement.Compensating())
		require.Equal(t, -movement.Direction(), movement.Compensating().Direction())
	}
}

func TestHistoryOrderedAscending(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, ServiceConfig{})

	appendEntry(t, svc, store, MovementReceipt, "10", "5")
	appendEntry(t, svc, store, MovementIssue, "-4", "0")

	entries, err := svc.GetHistory(context.Background(), HistoryFilter{ProductID: 1, LocationID: 1})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.False(t, entries[1].CreatedAt.Before(entries[0].CreatedAt))
}
