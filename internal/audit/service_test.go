package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

type fakeTimelineRepo struct {
	logs []shared.AuditLog
}

func (f *fakeTimelineRepo) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]shared.AuditLog, error) {
	if offset >= len(f.logs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.logs) {
		end = len(f.logs)
	}
	return f.logs[offset:end], nil
}

func seedLogs(n int) []shared.AuditLog {
	logs := make([]shared.AuditLog, 0, n)
	for i := 0; i < n; i++ {
		logs = append(logs, shared.AuditLog{ActorID: 1, Action: "inventory:receive", Entity: "consumable", EntityID: fmt.Sprintf("%d", i)})
	}
	return logs
}

func TestTimelinePagingLookahead(t *testing.T) {
	svc := NewService(&fakeTimelineRepo{logs: seedLogs(25)})

	first, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, first.Rows, 20)
	require.True(t, first.Paging.HasNext)
	require.Equal(t, 2, first.Paging.NextPage)
	require.Zero(t, first.Paging.PrevPage)

	second, err := svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, second.Rows, 5)
	require.False(t, second.Paging.HasNext)
	require.Equal(t, 1, second.Paging.PrevPage)
}

func TestTimelineClampsPageSize(t *testing.T) {
	svc := NewService(&fakeTimelineRepo{logs: seedLogs(80)})

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 500})
	require.NoError(t, err)
	require.Len(t, result.Rows, 50)
	require.Equal(t, 50, result.Paging.PageSize)
}
