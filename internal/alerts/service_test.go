package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/batch"
	"github.com/meridian-pos/meridian-pos/internal/masterdata"
)

type fakeLevels struct {
	rows  []masterdata.LowStockRow
	err   error
	calls int
}

func (f *fakeLevels) ListBelowReorder(_ context.Context) ([]masterdata.LowStockRow, error) {
	f.calls++
	return f.rows, f.err
}

type fakeBatches struct {
	expiring []batch.Batch
	expired  []batch.Batch
	err      error
}

func (f *fakeBatches) GetExpiring(_ context.Context, _ int) ([]batch.Batch, error) {
	return f.expiring, f.err
}

func (f *fakeBatches) GetExpired(_ context.Context) ([]batch.Batch, error) {
	return f.expired, f.err
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func expiryDate(days int) *time.Time {
	t := time.Now().UTC().AddDate(0, 0, days).Truncate(24 * time.Hour)
	return &t
}

func testSources() (*fakeLevels, *fakeBatches) {
	levels := &fakeLevels{rows: []masterdata.LowStockRow{
		{ProductID: 1, ProductName: "Arabica Beans", LocationID: 20, Quantity: dec("2"), Threshold: dec("5")},
	}}
	batches := &fakeBatches{
		expiring: []batch.Batch{
			{ID: 1, ProductID: 2, BatchNo: "MILK-0901", Quantity: dec("8"), Expiry: expiryDate(3), Status: batch.StatusActive},
		},
		expired: []batch.Batch{
			{ID: 2, ProductID: 2, BatchNo: "MILK-0820", Quantity: dec("1"), Expiry: expiryDate(-2), Status: batch.StatusActive},
		},
	}
	return levels, batches
}

func TestBuildCollectsAllAlertKinds(t *testing.T) {
	levels, batches := testSources()
	detector := NewDetector(levels, batches, 7)

	snap, err := detector.Build(context.Background())
	require.NoError(t, err)
	require.False(t, snap.GeneratedAt.IsZero())

	require.Len(t, snap.LowStock, 1)
	require.Equal(t, int64(1), snap.LowStock[0].ProductID)
	require.True(t, snap.LowStock[0].Quantity.Equal(dec("2")))

	require.Len(t, snap.Expiring, 1)
	require.False(t, snap.Expiring[0].Expired)
	require.Len(t, snap.Expired, 1)
	require.True(t, snap.Expired[0].Expired)
}

func TestBuildPropagatesQueryError(t *testing.T) {
	levels, batches := testSources()
	batches.err = errors.New("boom")
	detector := NewDetector(levels, batches, 7)

	_, err := detector.Build(context.Background())
	require.Error(t, err)
}

func TestBuildSkipsBatchesWithoutExpiry(t *testing.T) {
	levels, batches := testSources()
	batches.expiring = append(batches.expiring, batch.Batch{ID: 3, ProductID: 4, BatchNo: "NO-EXP", Quantity: dec("9")})
	detector := NewDetector(levels, batches, 7)

	snap, err := detector.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Expiring, 1)
}

func newCachedService(t *testing.T, levels *fakeLevels, batches *fakeBatches, ttl time.Duration) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(NewDetector(levels, batches, 7), NewCache(client, ttl)), mr
}

func TestSnapshotServedFromCache(t *testing.T) {
	levels, batches := testSources()
	svc, _ := newCachedService(t, levels, batches, time.Minute)

	first, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, levels.calls)

	second, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, levels.calls, "second read must hit the cache")
	require.Equal(t, first.GeneratedAt.Unix(), second.GeneratedAt.Unix())
	require.Len(t, second.LowStock, 1)
}

func TestSnapshotRebuildsAfterTTL(t *testing.T) {
	levels, batches := testSources()
	svc, mr := newCachedService(t, levels, batches, time.Minute)

	_, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, levels.calls, "expired cache must trigger a rebuild")
}

func TestRefreshOverwritesCache(t *testing.T) {
	levels, batches := testSources()
	svc, _ := newCachedService(t, levels, batches, time.Minute)

	_, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	levels.rows = append(levels.rows, masterdata.LowStockRow{
		ProductID: 3, ProductName: "Espresso Cups", LocationID: 20, Quantity: dec("0"), Threshold: dec("10"),
	})
	snap, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.LowStock, 2)

	cached, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, cached.LowStock, 2)
}

func TestSnapshotWithoutCacheAlwaysBuilds(t *testing.T) {
	levels, batches := testSources()
	svc := NewService(NewDetector(levels, batches, 7), nil)

	_, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	_, err = svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, levels.calls)
}
