// Package alerts derives low-stock and expiry warnings from the current
// stock levels and product batches. The detector is read-only: it never
// writes ledger entries or mutates batches.
package alerts

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-pos/meridian-pos/internal/batch"
	"github.com/meridian-pos/meridian-pos/internal/masterdata"
)

// LowStockSource lists stock levels at or below their reorder threshold.
type LowStockSource interface {
	ListBelowReorder(ctx context.Context) ([]masterdata.LowStockRow, error)
}

// BatchSource exposes the expiry queries of the batch service.
type BatchSource interface {
	GetExpiring(ctx context.Context, withinDays int) ([]batch.Batch, error)
	GetExpired(ctx context.Context) ([]batch.Batch, error)
}

// LowStockAlert flags a product whose quantity at a location sits at or
// below its reorder threshold.
type LowStockAlert struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	LocationID  int64           `json:"location_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Threshold   decimal.Decimal `json:"threshold"`
}

// ExpiryAlert flags a batch near or past its expiry date.
type ExpiryAlert struct {
	BatchID   int64           `json:"batch_id"`
	ProductID int64           `json:"product_id"`
	BatchNo   string          `json:"batch_no"`
	Quantity  decimal.Decimal `json:"quantity"`
	Expiry    time.Time       `json:"expiry"`
	Expired   bool            `json:"expired"`
}

// Snapshot is one full detector pass.
type Snapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	LowStock    []LowStockAlert `json:"low_stock"`
	Expiring    []ExpiryAlert   `json:"expiring"`
	Expired     []ExpiryAlert   `json:"expired"`
}

// Detector runs the alert queries.
type Detector struct {
	levels     LowStockSource
	batches    BatchSource
	windowDays int
	now        func() time.Time
}

// NewDetector builds a detector. windowDays bounds the expiring-soon lookahead.
func NewDetector(levels LowStockSource, batches BatchSource, windowDays int) *Detector {
	if windowDays <= 0 {
		windowDays = 7
	}
	return &Detector{levels: levels, batches: batches, windowDays: windowDays, now: time.Now}
}

// LowStock returns products at or below their reorder threshold.
func (d *Detector) LowStock(ctx context.Context) ([]LowStockAlert, error) {
	rows, err := d.levels.ListBelowReorder(ctx)
	if err != nil {
		return nil, err
	}
	alerts := make([]LowStockAlert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, LowStockAlert{
			ProductID:   row.ProductID,
			ProductName: row.ProductName,
			LocationID:  row.LocationID,
			Quantity:    row.Quantity,
			Threshold:   row.Threshold,
		})
	}
	return alerts, nil
}

// Expiring returns active batches expiring within the given number of days.
// A non-positive withinDays falls back to the configured window.
func (d *Detector) Expiring(ctx context.Context, withinDays int) ([]ExpiryAlert, error) {
	if withinDays <= 0 {
		withinDays = d.windowDays
	}
	batches, err := d.batches.GetExpiring(ctx, withinDays)
	if err != nil {
		return nil, err
	}
	return toExpiryAlerts(batches, false), nil
}

// Expired returns active batches whose expiry date has passed.
func (d *Detector) Expired(ctx context.Context) ([]ExpiryAlert, error) {
	batches, err := d.batches.GetExpired(ctx)
	if err != nil {
		return nil, err
	}
	return toExpiryAlerts(batches, true), nil
}

// Build runs the three queries concurrently and assembles a snapshot.
func (d *Detector) Build(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{GeneratedAt: d.now().UTC()}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.LowStock, err = d.LowStock(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Expiring, err = d.Expiring(ctx, d.windowDays)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Expired, err = d.Expired(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func toExpiryAlerts(batches []batch.Batch, expired bool) []ExpiryAlert {
	alerts := make([]ExpiryAlert, 0, len(batches))
	for _, b := range batches {
		if b.Expiry == nil {
			continue
		}
		alerts = append(alerts, ExpiryAlert{
			BatchID:   b.ID,
			ProductID: b.ProductID,
			BatchNo:   b.BatchNo,
			Quantity:  b.Quantity,
			Expiry:    *b.Expiry,
			Expired:   expired,
		})
	}
	return alerts
}
