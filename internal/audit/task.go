package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// TaskTypeRecord is the task type for persisting one audit record.
const TaskTypeRecord = "audit:record"

// NewRecordTask constructs an Asynq task carrying one audit record.
func NewRecordTask(log shared.AuditLog) (*asynq.Task, error) {
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	data, err := json.Marshal(log)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRecord, data), nil
}

// NewRecordTaskHandler returns the worker-side handler that persists audit
// records. Malformed payloads are dropped rather than retried.
func NewRecordTaskHandler(store RecordStore) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var log shared.AuditLog
		if err := json.Unmarshal(t.Payload(), &log); err != nil {
			return asynq.SkipRetry
		}
		return store.Insert(ctx, log)
	}
}

// RecordStore persists audit records.
type RecordStore interface {
	Insert(ctx context.Context, log shared.AuditLog) error
}
