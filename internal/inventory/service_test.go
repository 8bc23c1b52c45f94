package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

type memoryLedger struct {
	consumables map[int64]Consumable
	parts       map[int64]Part
	batches     map[int64]*Batch
	movements   []Movement
	nextBatchID int64
	nextMoveID  int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		consumables: make(map[int64]Consumable),
		parts:       make(map[int64]Part),
		batches:     make(map[int64]*Batch),
	}
}

func (m *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return fn(ctx, m)
}

func (m *memoryLedger) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	result := []Movement{}
	for _, mv := range m.movements {
		if mv.ItemKind == filter.Kind && mv.ItemID == filter.ItemID {
			result = append(result, mv)
		}
	}
	return result, nil
}

func (m *memoryLedger) ListBatches(ctx context.Context, partID int64) ([]Batch, error) {
	return m.ListOpenBatchesForUpdate(ctx, partID)
}

func (m *memoryLedger) PartStock(ctx context.Context, partID int64) (float64, error) {
	return m.SumBatchRemaining(ctx, partID)
}

func (m *memoryLedger) GetConsumable(ctx context.Context, id int64) (Consumable, error) {
	return m.GetConsumableForUpdate(ctx, id)
}

func (m *memoryLedger) GetConsumableForUpdate(ctx context.Context, id int64) (Consumable, error) {
	c, ok := m.consumables[id]
	if !ok {
		return Consumable{}, shared.ErrNotFound
	}
	return c, nil
}

func (m *memoryLedger) UpdateConsumable(ctx context.Context, id int64, stock, avgCost float64) error {
	c, ok := m.consumables[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.Stock = stock
	c.AvgCost = avgCost
	m.consumables[id] = c
	return nil
}

func (m *memoryLedger) GetPart(ctx context.Context, id int64) (Part, error) {
	p, ok := m.parts[id]
	if !ok {
		return Part{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryLedger) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	b, ok := m.batches[id]
	if !ok {
		return Batch{}, shared.ErrNotFound
	}
	return *b, nil
}

func (m *memoryLedger) ListOpenBatchesForUpdate(ctx context.Context, partID int64) ([]Batch, error) {
	result := []Batch{}
	for id := int64(1); id <= m.nextBatchID; id++ {
		if b, ok := m.batches[id]; ok && b.PartID == partID && b.Remaining > 0 {
			result = append(result, *b)
		}
	}
	return result, nil
}

func (m *memoryLedger) NewestBatchForUpdate(ctx context.Context, partID int64) (Batch, error) {
	for id := m.nextBatchID; id >= 1; id-- {
		if b, ok := m.batches[id]; ok && b.PartID == partID {
			return *b, nil
		}
	}
	return Batch{}, shared.ErrNotFound
}

func (m *memoryLedger) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	m.nextBatchID++
	batch.ID = m.nextBatchID
	batch.CreatedAt = time.Now()
	m.batches[batch.ID] = &batch
	return batch.ID, nil
}

func (m *memoryLedger) UpdateBatchRemaining(ctx context.Context, id int64, remaining float64) error {
	b, ok := m.batches[id]
	if !ok {
		return shared.ErrNotFound
	}
	b.Remaining = remaining
	return nil
}

func (m *memoryLedger) UpdateBatchCost(ctx context.Context, id int64, unitCost float64) error {
	b, ok := m.batches[id]
	if !ok {
		return shared.ErrNotFound
	}
	b.UnitCost = unitCost
	return nil
}

func (m *memoryLedger) DeleteBatch(ctx context.Context, id int64) error {
	if _, ok := m.batches[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.batches, id)
	return nil
}

func (m *memoryLedger) SumBatchRemaining(ctx context.Context, partID int64) (float64, error) {
	var total float64
	for _, b := range m.batches {
		if b.PartID == partID {
			total += b.Remaining
		}
	}
	return total, nil
}

func (m *memoryLedger) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	m.nextMoveID++
	movement.ID = m.nextMoveID
	m.movements = append(m.movements, movement)
	return movement.ID, nil
}

func TestWeightedAverageReceive(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.consumables[1] = Consumable{ID: 1, Name: "Aceite 15W40", Stock: 10, AvgCost: 5}
	svc := NewService(ledger, nil)
	ctx := context.Background()

	balance, err := svc.ReceiveConsumable(ctx, ReceiveInput{ConsumableID: 1, Qty: 5, Cost: 8, CostMode: CostModeUnit})
	require.NoError(t, err)
	require.InDelta(t, 15.0, balance.Stock, 0.0001)
	require.InDelta(t, 6.0, balance.AvgCost, 0.0001)
}

func TestReceiveNetCostWithTax(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.consumables[1] = Consumable{ID: 1, Name: "Anticongelante"}
	svc := NewService(ledger, nil)
	ctx := context.Background()

	balance, err := svc.ReceiveConsumable(ctx, ReceiveInput{ConsumableID: 1, Qty: 100, Cost: 2500, CostMode: CostModeNet, AppliesTax: true})
	require.NoError(t, err)
	require.InDelta(t, 100.0, balance.Stock, 0.0001)
	require.InDelta(t, 29.0, balance.AvgCost, 0.0001)
}

func TestDispatchKeepsAverageAndSnapshotsCost(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.consumables[1] = Consumable{ID: 1, Stock: 15, AvgCost: 6}
	svc := NewService(ledger, nil)
	ctx := context.Background()

	balance, err := svc.DispatchConsumable(ctx, DispatchInput{ConsumableID: 1, Qty: 8, Note: "salida a autobus 12"})
	require.NoError(t, err)
	require.InDelta(t, 7.0, balance.Stock, 0.0001)
	require.InDelta(t, 6.0, balance.AvgCost, 0.0001)

	moves, err := svc.Movements(ctx, MovementFilter{Kind: shared.ItemConsumable, ItemID: 1})
	require.NoError(t, err)
	require.Len(t, moves, 1)
	require.InDelta(t, 6.0, moves[0].UnitCost, 0.0001)
	require.InDelta(t, 8.0, moves[0].QtyOut, 0.0001)
}

func TestDispatchInsufficientStock(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.consumables[1] = Consumable{ID: 1, Stock: 2, AvgCost: 3}
	svc := NewService(ledger, nil)

	_, err := svc.DispatchConsumable(context.Background(), DispatchInput{ConsumableID: 1, Qty: 5})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.InDelta(t, 2.0, ledger.consumables[1].Stock, 0.0001)
}

func TestDispatchTxRejectsNonPositiveQty(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.consumables[1] = Consumable{ID: 1, Stock: 10, AvgCost: 5}
	ctx := context.Background()

	// The tx-level entry point is called directly by sibling modules, so it
	// must enforce the guard itself.
	_, err := DispatchConsumableTx(ctx, ledger, DispatchInput{ConsumableID: 1, Qty: -5})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.InDelta(t, 10.0, ledger.consumables[1].Stock, 0.0001)

	_, err = DispatchConsumableTx(ctx, ledger, DispatchInput{ConsumableID: 1, Qty: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.InDelta(t, 10.0, ledger.consumables[1].Stock, 0.0001)
}

func TestDepleteBatchesFIFO(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.parts[1] = Part{ID: 1, Name: "Balata delantera"}
	svc := NewService(ledger, nil)
	ctx := context.Background()

	first, err := svc.CreateBatch(ctx, CreateBatchInput{PartID: 1, Qty: 4, UnitCost: 120})
	require.NoError(t, err)
	second, err := svc.CreateBatch(ctx, CreateBatchInput{PartID: 1, Qty: 10, UnitCost: 150})
	require.NoError(t, err)

	takes, err := svc.DepleteBatches(ctx, DepleteInput{PartID: 1, Qty: 6})
	require.NoError(t, err)
	require.Len(t, takes, 2)
	require.Equal(t, first, takes[0].BatchID)
	require.InDelta(t, 4.0, takes[0].Qty, 0.0001)
	require.InDelta(t, 120.0, takes[0].UnitCost, 0.0001)
	require.Equal(t, second, takes[1].BatchID)
	require.InDelta(t, 2.0, takes[1].Qty, 0.0001)

	stock, err := svc.PartStock(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 8.0, stock, 0.0001)
}

func TestDepleteBatchesInsufficientAggregate(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.parts[1] = Part{ID: 1}
	svc := NewService(ledger, nil)
	ctx := context.Background()

	_, err := svc.CreateBatch(ctx, CreateBatchInput{PartID: 1, Qty: 3, UnitCost: 100})
	require.NoError(t, err)

	_, err = svc.DepleteBatches(ctx, DepleteInput{PartID: 1, Qty: 5})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestDepleteSpecificBatchGuard(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.parts[1] = Part{ID: 1}
	svc := NewService(ledger, nil)
	ctx := context.Background()

	batchID, err := svc.CreateBatch(ctx, CreateBatchInput{PartID: 1, Qty: 3, UnitCost: 80})
	require.NoError(t, err)

	_, err = svc.DepleteSpecificBatch(ctx, batchID, 5, DepleteInput{PartID: 1})
	require.ErrorIs(t, err, shared.ErrInsufficientBatchStock)

	batch, err := ledger.GetBatchForUpdate(ctx, batchID)
	require.NoError(t, err)
	require.InDelta(t, 3.0, batch.Remaining, 0.0001)
}

func TestReviseBatchCost(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.parts[1] = Part{ID: 1}
	svc := NewService(ledger, nil)
	ctx := context.Background()

	batchID, err := svc.CreateBatch(ctx, CreateBatchInput{PartID: 1, Qty: 5, UnitCost: 100})
	require.NoError(t, err)

	newCost, err := svc.ReviseBatchCost(ctx, batchID, -20, 0)
	require.NoError(t, err)
	require.InDelta(t, 80.0, newCost, 0.0001)

	_, err = svc.ReviseBatchCost(ctx, batchID, -200, 0)
	require.ErrorIs(t, err, shared.ErrValidation)

	batch, err := ledger.GetBatchForUpdate(ctx, batchID)
	require.NoError(t, err)
	require.InDelta(t, 5.0, batch.Remaining, 0.0001)
}

func TestFinalUnitCost(t *testing.T) {
	cost, err := FinalUnitCost(100, 2500, CostModeNet, true)
	require.NoError(t, err)
	require.InDelta(t, 29.0, cost, 0.0001)

	cost, err = FinalUnitCost(10, 25, CostModeUnit, false)
	require.NoError(t, err)
	require.InDelta(t, 25.0, cost, 0.0001)

	_, err = FinalUnitCost(0, 25, CostModeUnit, false)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = FinalUnitCost(10, 25, CostMode("bruto"), false)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestWeightedAverageClampsToZero(t *testing.T) {
	require.InDelta(t, 0.0, WeightedAverage(0, 0, 0, 10), 0.0001)
	require.InDelta(t, 6.0, WeightedAverage(10, 5, 5, 8), 0.0001)
}
