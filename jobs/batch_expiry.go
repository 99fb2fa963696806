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

// BatchExpirySweepJob reports batches inside the expiry window and batches
// already past their date.
type BatchExpirySweepJob struct {
	Alerts  *alerts.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewBatchExpirySweepJob wires dependencies for the sweep handler.
func NewBatchExpirySweepJob(alertSvc *alerts.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *BatchExpirySweepJob {
	return &BatchExpirySweepJob{
		Alerts:  alertSvc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the expiry sweep.
func (j *BatchExpirySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Alerts == nil {
		return errors.New("batch expiry sweep: handler not configured")
	}
	var payload BatchExpirySweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskBatchExpirySweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	logger := j.logger().With(slog.Int("within_days", payload.WithinDays))
	logger.Info("starting batch expiry sweep")

	expiring, err := j.Alerts.Expiring(ctx, payload.WithinDays)
	if err != nil {
		resultErr = err
		logger.Error("expiring query failed", slog.Any("error", err))
		return resultErr
	}
	expired, err := j.Alerts.Expired(ctx)
	if err != nil {
		resultErr = err
		logger.Error("expired query failed", slog.Any("error", err))
		return resultErr
	}

	for _, a := range expiring {
		logger.Warn("batch expiring soon",
			slog.Int64("product_id", a.ProductID),
			slog.String("batch_no", a.BatchNo),
			slog.Time("expiry", a.Expiry),
			slog.String("quantity", a.Quantity.String()),
		)
	}
	for _, a := range expired {
		logger.Warn("batch expired",
			slog.Int64("product_id", a.ProductID),
			slog.String("batch_no", a.BatchNo),
			slog.Time("expiry", a.Expiry),
			slog.String("quantity", a.Quantity.String()),
		)
	}

	j.metrics().AddAlerts("expiring", len(expiring))
	j.metrics().AddAlerts("expired", len(expired))

	logger.Info("completed batch expiry sweep",
		slog.Int("expiring", len(expiring)),
		slog.Int("expired", len(expired)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *BatchExpirySweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *BatchExpirySweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *BatchExpirySweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
