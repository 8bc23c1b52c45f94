package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/almacen-erp/almacen-erp/internal/catalog"
)

// LowStockSource reads the items currently under their minimum threshold.
type LowStockSource interface {
	LowStockParts(ctx context.Context) ([]catalog.PartSummary, error)
	LowStockConsumables(ctx context.Context) ([]catalog.ConsumableSummary, error)
}

// NewLowStockScanHandler returns the handler for the periodic low-stock
// scan. Both item families are scanned concurrently and the result is
// emitted as a structured report so alerting can hang off the logs.
func NewLowStockScanHandler(source LowStockSource, logger *slog.Logger) asynq.HandlerFunc {
	printer := message.NewPrinter(language.Spanish)
	return func(ctx context.Context, _ *asynq.Task) error {
		var (
			parts       []catalog.PartSummary
			consumables []catalog.ConsumableSummary
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			parts, err = source.LowStockParts(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			consumables, err = source.LowStockConsumables(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		for _, part := range parts {
			logger.Warn("low stock",
				slog.String("item_kind", "refaccion"),
				slog.Int64("item_id", part.ID),
				slog.String("sku", part.SKU),
				slog.String("name", part.Name),
				slog.String("stock", printer.Sprintf("%.2f", part.Stock)),
				slog.String("min_stock", printer.Sprintf("%.2f", part.MinStock)),
			)
		}
		for _, consumable := range consumables {
			logger.Warn("low stock",
				slog.String("item_kind", "insumo"),
				slog.Int64("item_id", consumable.ID),
				slog.String("name", consumable.Name),
				slog.String("stock", printer.Sprintf("%.2f %s", consumable.Stock, consumable.Unit)),
				slog.String("min_stock", printer.Sprintf("%.2f %s", consumable.MinStock, consumable.Unit)),
			)
		}
		logger.Info("low stock scan finished",
			slog.Int("parts_below_min", len(parts)),
			slog.Int("consumables_below_min", len(consumables)),
		)
		return nil
	}
}
