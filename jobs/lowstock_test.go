package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/almacen-erp/almacen-erp/internal/catalog"
)

type fakeLowStockSource struct {
	parts       []catalog.PartSummary
	consumables []catalog.ConsumableSummary
	err         error
}

func (f *fakeLowStockSource) LowStockParts(context.Context) ([]catalog.PartSummary, error) {
	return f.parts, f.err
}

func (f *fakeLowStockSource) LowStockConsumables(context.Context) ([]catalog.ConsumableSummary, error) {
	return f.consumables, f.err
}

func TestLowStockScanReportsBothFamilies(t *testing.T) {
	var records []slog.Record
	logger := slog.New(recordingHandler{records: &records})
	source := &fakeLowStockSource{
		parts:       []catalog.PartSummary{{ID: 1, SKU: "BAL-001", Name: "Balata delantera", Stock: 2, MinStock: 6}},
		consumables: []catalog.ConsumableSummary{{ID: 7, Name: "Aceite 15W40", Unit: "L", Stock: 12, MinStock: 40}},
	}

	handler := NewLowStockScanHandler(source, logger)
	require.NoError(t, handler(context.Background(), NewLowStockScanTask()))

	warns := 0
	for _, rec := range records {
		if rec.Level == slog.LevelWarn {
			warns++
		}
	}
	require.Equal(t, 2, warns)
}

func TestLowStockScanPropagatesSourceError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	source := &fakeLowStockSource{err: context.DeadlineExceeded}

	handler := NewLowStockScanHandler(source, logger)
	require.Error(t, handler(context.Background(), NewLowStockScanTask()))
}

type recordingHandler struct {
	records *[]slog.Record
}

func (h recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h recordingHandler) Handle(_ context.Context, rec slog.Record) error {
	*h.records = append(*h.records, rec)
	return nil
}

func (h recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h recordingHandler) WithGroup(string) slog.Handler { return h }
