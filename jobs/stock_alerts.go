package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-pos/meridian-pos/internal/alerts"
	jobmetrics "github.com/meridian-pos/meridian-pos/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StockAlertScanJob rebuilds the alert snapshot and logs every finding.
type StockAlertScanJob struct {
	Alerts  *alerts.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewStockAlertScanJob wires dependencies for the scan handler.
func NewStockAlertScanJob(alertSvc *alerts.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockAlertScanJob {
	return &StockAlertScanJob{
		Alerts:  alertSvc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the alert scan.
func (j *StockAlertScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Alerts == nil {
		return errors.New("stock alert scan: handler not configured")
	}
	var payload StockAlertScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskStockAlertScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	logger := j.logger()
	logger.Info("starting stock alert scan")

	snap, err := j.Alerts.Refresh(ctx)
	if err != nil {
		resultErr = err
		logger.Error("alert scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, a := range snap.LowStock {
		logger.Warn("low stock",
			slog.Int64("product_id", a.ProductID),
			slog.String("product", a.ProductName),
			slog.Int64("location_id", a.LocationID),
			slog.String("quantity", a.Quantity.String()),
			slog.String("threshold", a.Threshold.String()),
		)
	}
	for _, a := range snap.Expired {
		logger.Warn("batch expired",
			slog.Int64("product_id", a.ProductID),
			slog.String("batch_no", a.BatchNo),
			slog.Time("expiry", a.Expiry),
			slog.String("quantity", a.Quantity.String()),
		)
	}

	j.metrics().AddAlerts("low_stock", len(snap.LowStock))
	j.metrics().AddAlerts("expiring", len(snap.Expiring))
	j.metrics().AddAlerts("expired", len(snap.Expired))

	logger.Info("completed stock alert scan",
		slog.Int("low_stock", len(snap.LowStock)),
		slog.Int("expiring", len(snap.Expiring)),
		slog.Int("expired", len(snap.Expired)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *StockAlertScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *StockAlertScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *StockAlertScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
