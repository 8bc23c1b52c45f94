package adjustments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/almacen-erp/almacen-erp/internal/inventory"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

type memoryRepo struct {
	consumables map[int64]inventory.Consumable
	parts       map[int64]inventory.Part
	batches     map[int64]*inventory.Batch
	adjustments map[int64]*Adjustment
	lines       map[int64][]Line
	nextBatch   int64
	nextAdj     int64
	nextLine    int64
	nextMove    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		consumables: make(map[int64]inventory.Consumable),
		parts:       make(map[int64]inventory.Part),
		batches:     make(map[int64]*inventory.Batch),
		adjustments: make(map[int64]*Adjustment),
		lines:       make(map[int64][]Line),
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Adjustment, []Line, error) {
	adj, ok := m.adjustments[id]
	if !ok {
		return Adjustment{}, nil, shared.ErrNotFound
	}
	return *adj, m.lines[id], nil
}

func (m *memoryRepo) List(ctx context.Context, limit int) ([]Adjustment, error) {
	result := []Adjustment{}
	for _, adj := range m.adjustments {
		result = append(result, *adj)
	}
	return result, nil
}

func (m *memoryRepo) GetConsumableForUpdate(ctx context.Context, id int64) (inventory.Consumable, error) {
	c, ok := m.consumables[id]
	if !ok {
		return inventory.Consumable{}, shared.ErrNotFound
	}
	return c, nil
}

func (m *memoryRepo) UpdateConsumable(ctx context.Context, id int64, stock, avgCost float64) error {
	c, ok := m.consumables[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.Stock = stock
	c.AvgCost = avgCost
	m.consumables[id] = c
	return nil
}

func (m *memoryRepo) GetPart(ctx context.Context, id int64) (inventory.Part, error) {
	p, ok := m.parts[id]
	if !ok {
		return inventory.Part{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) GetBatchForUpdate(ctx context.Context, id int64) (inventory.Batch, error) {
	b, ok := m.batches[id]
	if !ok {
		return inventory.Batch{}, shared.ErrNotFound
	}
	return *b, nil
}

func (m *memoryRepo) ListOpenBatchesForUpdate(ctx context.Context, partID int64) ([]inventory.Batch, error) {
	result := []inventory.Batch{}
	for id := int64(1); id <= m.nextBatch; id++ {
		if b, ok := m.batches[id]; ok && b.PartID == partID && b.Remaining > 0 {
			result = append(result, *b)
		}
	}
	return result, nil
}

func (m *memoryRepo) NewestBatchForUpdate(ctx context.Context, partID int64) (inventory.Batch, error) {
	for id := m.nextBatch; id >= 1; id-- {
		if b, ok := m.batches[id]; ok && b.PartID == partID {
			return *b, nil
		}
	}
	return inventory.Batch{}, shared.ErrNotFound
}

func (m *memoryRepo) InsertBatch(ctx context.Context, batch inventory.Batch) (int64, error) {
	m.nextBatch++
	batch.ID = m.nextBatch
	batch.CreatedAt = time.Now()
	m.batches[batch.ID] = &batch
	return batch.ID, nil
}

func (m *memoryRepo) UpdateBatchRemaining(ctx context.Context, id int64, remaining float64) error {
	b, ok := m.batches[id]
	if !ok {
		return shared.ErrNotFound
	}
	b.Remaining = remaining
	return nil
}

func (m *memoryRepo) UpdateBatchCost(ctx context.Context, id int64, unitCost float64) error {
	b, ok := m.batches[id]
	if !ok {
		return shared.ErrNotFound
	}
	b.UnitCost = unitCost
	return nil
}

func (m *memoryRepo) DeleteBatch(ctx context.Context, id int64) error {
	if _, ok := m.batches[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.batches, id)
	return nil
}

func (m *memoryRepo) SumBatchRemaining(ctx context.Context, partID int64) (float64, error) {
	var total float64
	for _, b := range m.batches {
		if b.PartID == partID {
			total += b.Remaining
		}
	}
	return total, nil
}

func (m *memoryRepo) InsertMovement(ctx context.Context, movement inventory.Movement) (int64, error) {
	m.nextMove++
	return m.nextMove, nil
}

func (m *memoryRepo) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	m.nextAdj++
	adj.ID = m.nextAdj
	adj.CreatedAt = time.Now()
	m.adjustments[adj.ID] = &adj
	return adj.ID, nil
}

func (m *memoryRepo) TouchAdjustment(ctx context.Context, id int64, adjType Type, reason string) error {
	adj, ok := m.adjustments[id]
	if !ok {
		return shared.ErrNotFound
	}
	adj.Type = adjType
	adj.Reason = reason
	adj.UpdatedAt = time.Now()
	return nil
}

func (m *memoryRepo) GetAdjustmentForUpdate(ctx context.Context, id int64) (Adjustment, error) {
	adj, ok := m.adjustments[id]
	if !ok {
		return Adjustment{}, shared.ErrNotFound
	}
	return *adj, nil
}

func (m *memoryRepo) InsertLine(ctx context.Context, line Line) (int64, error) {
	m.nextLine++
	line.ID = m.nextLine
	m.lines[line.AdjustmentID] = append(m.lines[line.AdjustmentID], line)
	return line.ID, nil
}

func (m *memoryRepo) ListLines(ctx context.Context, adjustmentID int64) ([]Line, error) {
	return m.lines[adjustmentID], nil
}

func (m *memoryRepo) DeleteLines(ctx context.Context, adjustmentID int64) error {
	delete(m.lines, adjustmentID)
	return nil
}

func TestPostEntradaCreatesBatchAndRecordsIt(t *testing.T) {
	repo := newMemoryRepo()
	repo.parts[1] = inventory.Part{ID: 1, Name: "Filtro de aire"}
	svc := NewService(repo, nil)
	ctx := context.Background()

	adj, lines, err := svc.Post(ctx, PostInput{
		Type:       TypeEntrada,
		EmployeeID: 7,
		Reason:     "conteo fisico",
		Lines:      []LineInput{{Item: shared.PartRef(1), Qty: 10, UnitCost: 45}},
	})
	require.NoError(t, err)
	require.NotZero(t, adj.ID)
	require.Len(t, lines, 1)
	require.NotZero(t, lines[0].BatchID)

	stock, err := repo.SumBatchRemaining(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 10.0, stock, 0.0001)
}

func TestReviseRevertsEntradaAndLeavesOthersAlone(t *testing.T) {
	repo := newMemoryRepo()
	repo.parts[1] = inventory.Part{ID: 1}
	svc := NewService(repo, nil)
	ctx := context.Background()

	// Pre-existing batch that must be untouched by the revert.
	preexisting, err := repo.InsertBatch(ctx, inventory.Batch{PartID: 1, Remaining: 6, UnitCost: 30})
	require.NoError(t, err)

	adj, _, err := svc.Post(ctx, PostInput{
		Type:       TypeEntrada,
		EmployeeID: 7,
		Lines:      []LineInput{{Item: shared.PartRef(1), Qty: 10, UnitCost: 45}},
	})
	require.NoError(t, err)

	_, _, err = svc.Revise(ctx, adj.ID, PostInput{Type: TypeEntrada, EmployeeID: 7, Reason: "cancelado"})
	require.NoError(t, err)

	stock, err := repo.SumBatchRemaining(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 6.0, stock, 0.0001)

	batch, err := repo.GetBatchForUpdate(ctx, preexisting)
	require.NoError(t, err)
	require.InDelta(t, 6.0, batch.Remaining, 0.0001)
	require.InDelta(t, 30.0, batch.UnitCost, 0.0001)
}

func TestReviseGuardsPartiallyConsumedBatch(t *testing.T) {
	repo := newMemoryRepo()
	repo.parts[1] = inventory.Part{ID: 1}
	svc := NewService(repo, nil)
	ctx := context.Background()

	adj, lines, err := svc.Post(ctx, PostInput{
		Type:       TypeEntrada,
		EmployeeID: 7,
		Lines:      []LineInput{{Item: shared.PartRef(1), Qty: 10, UnitCost: 45}},
	})
	require.NoError(t, err)

	// A dispatch elsewhere consumes part of the batch before the revision.
	batch := repo.batches[lines[0].BatchID]
	batch.Remaining -= 3

	_, _, err = svc.Revise(ctx, adj.ID, PostInput{Type: TypeEntrada, EmployeeID: 7})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestSalidaConsumableRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	repo.consumables[3] = inventory.Consumable{ID: 3, Stock: 20, AvgCost: 4}
	svc := NewService(repo, nil)
	ctx := context.Background()

	adj, _, err := svc.Post(ctx, PostInput{
		Type:       TypeSalida,
		EmployeeID: 2,
		Lines:      []LineInput{{Item: shared.ConsumableRef(3), Qty: 5}},
	})
	require.NoError(t, err)
	require.InDelta(t, 15.0, repo.consumables[3].Stock, 0.0001)

	_, _, err = svc.Revise(ctx, adj.ID, PostInput{Type: TypeSalida, EmployeeID: 2})
	require.NoError(t, err)
	require.InDelta(t, 20.0, repo.consumables[3].Stock, 0.0001)
	require.InDelta(t, 4.0, repo.consumables[3].AvgCost, 0.0001)
}

func TestSalidaPartRequiresBatch(t *testing.T) {
	repo := newMemoryRepo()
	repo.parts[1] = inventory.Part{ID: 1}
	svc := NewService(repo, nil)

	_, _, err := svc.Post(context.Background(), PostInput{
		Type:       TypeSalida,
		EmployeeID: 2,
		Lines:      []LineInput{{Item: shared.PartRef(1), Qty: 5}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRevalorizacionPartRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	repo.parts[1] = inventory.Part{ID: 1}
	svc := NewService(repo, nil)
	ctx := context.Background()

	batchID, err := repo.InsertBatch(ctx, inventory.Batch{PartID: 1, Remaining: 5, UnitCost: 100})
	require.NoError(t, err)

	adj, _, err := svc.Post(ctx, PostInput{
		Type:       TypeRevalorizacion,
		EmployeeID: 4,
		Lines:      []LineInput{{Item: shared.PartRef(1), CostDelta: 15, BatchID: batchID}},
	})
	require.NoError(t, err)
	require.InDelta(t, 115.0, repo.batches[batchID].UnitCost, 0.0001)
	require.InDelta(t, 5.0, repo.batches[batchID].Remaining, 0.0001)

	_, _, err = svc.Revise(ctx, adj.ID, PostInput{Type: TypeRevalorizacion, EmployeeID: 4})
	require.NoError(t, err)
	require.InDelta(t, 100.0, repo.batches[batchID].UnitCost, 0.0001)
}

func TestPostRejectsUnknownType(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, _, err := svc.Post(context.Background(), PostInput{Type: Type("MERMA"), EmployeeID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}
