package shared

import (
	"context"
	"time"
)

// AuditLog describes an action performed against a resource. Records are
// emitted by the core services as a side effect and persisted out of band;
// a failure to record must never fail the primary operation.
type AuditLog struct {
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// AuditRecorder is the emission boundary the services depend on. The
// production implementation enqueues the record for a background consumer.
type AuditRecorder interface {
	Record(ctx context.Context, log AuditLog) error
}
