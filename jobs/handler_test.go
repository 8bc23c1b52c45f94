package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	info  *asynq.TaskInfo
	err   error
	calls int
}

func (f *fakeEnqueuer) EnqueueLowStockScan(context.Context) (*asynq.TaskInfo, error) {
	f.calls++
	return f.info, f.err
}

func TestTriggerLowStockScanAccepted(t *testing.T) {
	enqueuer := &fakeEnqueuer{info: &asynq.TaskInfo{ID: "t1", Queue: QueueDefault}}
	handler := NewHandler(enqueuer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router := chi.NewRouter()
	router.Route("/tareas", handler.MountRoutes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tareas/bajo-stock", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, enqueuer.calls)
}

func TestTriggerLowStockScanQueueUnavailable(t *testing.T) {
	enqueuer := &fakeEnqueuer{err: errors.New("dial tcp: connection refused")}
	handler := NewHandler(enqueuer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router := chi.NewRouter()
	router.Route("/tareas", handler.MountRoutes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tareas/bajo-stock", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
