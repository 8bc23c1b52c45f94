package audit

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/almacen-erp/almacen-erp/internal/shared"
	"github.com/almacen-erp/almacen-erp/jobs"
)

// Recorder emits audit records onto the task queue. Enqueue failures are
// logged and swallowed so auditing can never fail or delay the primary
// operation; isolation is structural, not conventional.
type Recorder struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewRecorder constructs the queue-backed recorder.
func NewRecorder(client *asynq.Client, logger *slog.Logger) *Recorder {
	return &Recorder{client: client, logger: logger}
}

// Record enqueues the audit record. Always returns nil.
func (r *Recorder) Record(ctx context.Context, log shared.AuditLog) error {
	if r == nil || r.client == nil {
		return nil
	}
	task, err := NewRecordTask(log)
	if err != nil {
		r.logger.Warn("audit record marshal failed", slog.Any("error", err))
		return nil
	}
	if _, err := r.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault)); err != nil {
		r.logger.Warn("audit record enqueue failed",
			slog.String("action", log.Action),
			slog.String("entity", log.Entity),
			slog.Any("error", err))
	}
	return nil
}
