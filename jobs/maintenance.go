package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// idempotencyRetention keeps keys long enough to outlive any client retry
// window before the nightly prune removes them.
const idempotencyRetention = 30 * 24 * time.Hour

// IdempotencyCleaner prunes processed idempotency keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewIdempotencyCleanupHandler returns the worker-side handler that prunes
// idempotency keys past the retention window.
func NewIdempotencyCleanupHandler(store IdempotencyCleaner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := store.Cleanup(ctx, idempotencyRetention); err != nil {
			return err
		}
		logger.Info("idempotency keys pruned", slog.Duration("retention", idempotencyRetention))
		return nil
	}
}
