package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCleaner struct {
	olderThan time.Duration
	err       error
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	f.olderThan = olderThan
	return f.err
}

func TestIdempotencyCleanupHandlerPrunes(t *testing.T) {
	cleaner := &fakeCleaner{}
	handler := NewIdempotencyCleanupHandler(cleaner, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := handler(context.Background(), NewIdempotencyCleanupTask())
	require.NoError(t, err)
	require.Equal(t, idempotencyRetention, cleaner.olderThan)
}

func TestIdempotencyCleanupHandlerPropagatesError(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("connection reset")}
	handler := NewIdempotencyCleanupHandler(cleaner, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := handler(context.Background(), NewIdempotencyCleanupTask())
	require.Error(t, err)
}
