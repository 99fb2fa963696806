// Package jobs wires background work onto Asynq: periodic stock alert scans
// and batch expiry sweeps.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockAlertScan rebuilds the alert snapshot and logs findings.
	TaskStockAlertScan = "alerts:scan"
	// TaskBatchExpirySweep reports batches near or past expiry.
	TaskBatchExpirySweep = "batch:expiry_sweep"
)

// StockAlertScanPayload carries scheduling metadata for the alert scan.
type StockAlertScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockAlertScanTask constructs an Asynq task for the alert scan.
func NewStockAlertScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockAlertScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockAlertScan, body, asynq.Queue(QueueDefault)), nil
}

// BatchExpirySweepPayload configures the expiry sweep lookahead.
type BatchExpirySweepPayload struct {
	WithinDays int `json:"within_days"`
}

// NewBatchExpirySweepTask constructs an Asynq task for the expiry sweep.
func NewBatchExpirySweepTask(withinDays int) (*asynq.Task, error) {
	body, err := json.Marshal(BatchExpirySweepPayload{WithinDays: withinDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBatchExpirySweep, body, asynq.Queue(QueueDefault)), nil
}
