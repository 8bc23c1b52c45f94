package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan is the task type for the periodic low-stock report.
	TaskLowStockScan = "inventory:lowstock-scan"
	// TaskIdempotencyCleanup is the task type for pruning processed
	// idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"
)

// NewLowStockScanTask constructs the low-stock scan task. The task carries
// no payload; the handler reads live thresholds at run time.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}

// NewIdempotencyCleanupTask constructs the idempotency key pruning task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
