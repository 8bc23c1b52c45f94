package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/almacen-erp/almacen-erp/internal/shared"
	"github.com/almacen-erp/almacen-erp/jobs"
)

func TestRecorderEnqueuesOnSharedQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	opt := asynq.RedisClientOpt{Addr: mr.Addr()}
	client := asynq.NewClient(opt)
	defer client.Close()

	recorder := NewRecorder(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := recorder.Record(context.Background(), shared.AuditLog{
		Action:   "crear",
		Entity:   "consumible",
		EntityID: "7",
	})
	require.NoError(t, err)

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()
	pending, err := inspector.ListPendingTasks(jobs.QueueDefault)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, TaskTypeRecord, pending[0].Type)
}

func TestRecorderSwallowsEnqueueFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	opt := asynq.RedisClientOpt{Addr: mr.Addr()}
	client := asynq.NewClient(opt)
	defer client.Close()
	mr.Close()

	recorder := NewRecorder(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := recorder.Record(context.Background(), shared.AuditLog{Action: "crear", Entity: "lote"})
	require.NoError(t, err)
}
