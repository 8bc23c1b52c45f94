package entries

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
	entries     map[int64]*Entry
	lines       map[int64][]Line
	nextBatch   int64
	nextEntry   int64
	nextLine    int64
	nextMove    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		consumables: make(map[int64]inventory.Consumable),
		parts:       make(map[int64]inventory.Part),
		batches:     make(map[int64]*inventory.Batch),
		entries:     make(map[int64]*Entry),
		lines:       make(map[int64][]Line),
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Entry, []Line, error) {
	entry, ok := m.entries[id]
	if !ok {
		return Entry{}, nil, shared.ErrNotFound
	}
	return *entry, m.lines[id], nil
}

func (m *memoryRepo) List(ctx context.Context, kind Kind, limit int) ([]Entry, error) {
	result := []Entry{}
	for _, entry := range m.entries {
		if kind == "" || entry.Kind == kind {
			result = append(result, *entry)
		}
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

func (m *memoryRepo) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	m.nextEntry++
	entry.ID = m.nextEntry
	entry.CreatedAt = time.Now()
	m.entries[entry.ID] = &entry
	return entry.ID, nil
}

func (m *memoryRepo) InsertLine(ctx context.Context, line Line) (int64, error) {
	m.nextLine++
	line.ID = m.nextLine
	m.lines[line.EntryID] = append(m.lines[line.EntryID], line)
	return line.ID, nil
}

type memoryIdem struct {
	keys map[string]bool
}

func newMemoryIdem() *memoryIdem {
	return &memoryIdem{keys: make(map[string]bool)}
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdem) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func TestPostReceiptNetCostWithTax(t *testing.T) {
	repo := newMemoryRepo()
	repo.consumables[1] = inventory.Consumable{ID: 1}
	svc := NewService(repo, newMemoryIdem(), nil)

	_, lines, err := svc.PostReceipt(context.Background(), ReceiptInput{
		Code:       "REC-001",
		EmployeeID: 2,
		CostMode:   inventory.CostModeNet,
		AppliesTax: true,
		Lines:      []ReceiptLineInput{{Item: shared.ConsumableRef(1), Qty: 100, Cost: 2500}},
	})
	require.NoError(t, err)
	require.InDelta(t, 29.0, lines[0].FinalUnitCost, 0.0001)
	require.InDelta(t, 100.0, repo.consumables[1].Stock, 0.0001)
	require.InDelta(t, 29.0, repo.consumables[1].AvgCost, 0.0001)
}

func TestPostReceiptPartOpensBatch(t *testing.T) {
	repo := newMemoryRepo()
	repo.parts[4] = inventory.Part{ID: 4}
	svc := NewService(repo, newMemoryIdem(), nil)

	_, lines, err := svc.PostReceipt(context.Background(), ReceiptInput{
		Code:       "REC-002",
		EmployeeID: 2,
		CostMode:   inventory.CostModeUnit,
		Lines:      []ReceiptLineInput{{Item: shared.PartRef(4), Qty: 6, Cost: 80}},
	})
	require.NoError(t, err)
	require.NotZero(t, lines[0].BatchID)
	require.InDelta(t, 6.0, repo.batches[lines[0].BatchID].Remaining, 0.0001)
	require.InDelta(t, 80.0, repo.batches[lines[0].BatchID].UnitCost, 0.0001)
}

func TestPostDispatchSplitsAcrossBatchesFIFO(t *testing.T) {
	repo := newMemoryRepo()
	repo.parts[4] = inventory.Part{ID: 4}
	svc := NewService(repo, newMemoryIdem(), nil)
	ctx := context.Background()

	first, err := repo.InsertBatch(ctx, inventory.Batch{PartID: 4, Remaining: 4, UnitCost: 10})
	require.NoError(t, err)
	second, err := repo.InsertBatch(ctx, inventory.Batch{PartID: 4, Remaining: 5, UnitCost: 20})
	require.NoError(t, err)

	_, lines, err := svc.PostDispatch(ctx, DispatchInput{
		Code:       "SAL-001",
		BusID:      9,
		EmployeeID: 2,
		Lines:      []DispatchLineInput{{Item: shared.PartRef(4), Qty: 6}},
	})
	require.NoError(t, err)
	require.InDelta(t, 0.0, repo.batches[first].Remaining, 0.0001)
	require.InDelta(t, 3.0, repo.batches[second].Remaining, 0.0001)
	// 4 at 10 plus 2 at 20 over 6 units.
	require.InDelta(t, 80.0/6.0, lines[0].FinalUnitCost, 0.0001)
}

func TestPostDispatchRejectsNonPositiveQty(t *testing.T) {
	repo := newMemoryRepo()
	repo.consumables[1] = inventory.Consumable{ID: 1, Stock: 10, AvgCost: 5}
	svc := NewService(repo, newMemoryIdem(), nil)
	ctx := context.Background()

	// A negative quantity must not slip through and inflate the balance.
	_, _, err := svc.PostDispatch(ctx, DispatchInput{
		Code:       "SAL-020",
		EmployeeID: 2,
		Lines:      []DispatchLineInput{{Item: shared.ConsumableRef(1), Qty: -5}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.InDelta(t, 10.0, repo.consumables[1].Stock, 0.0001)

	_, _, err = svc.PostDispatch(ctx, DispatchInput{
		Code:       "SAL-021",
		EmployeeID: 2,
		Lines:      []DispatchLineInput{{Item: shared.ConsumableRef(1), Qty: 0}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.InDelta(t, 10.0, repo.consumables[1].Stock, 0.0001)
}

func TestPostProductionSpreadsConsumedCost(t *testing.T) {
	repo := newMemoryRepo()
	repo.consumables[1] = inventory.Consumable{ID: 1, Stock: 20, AvgCost: 4}
	repo.parts[4] = inventory.Part{ID: 4}
	svc := NewService(repo, newMemoryIdem(), nil)

	_, batchID, err := svc.PostProduction(context.Background(), ProductionInput{
		Code:       "PRO-001",
		EmployeeID: 2,
		OutputPart: 4,
		OutputQty:  5,
		Inputs:     []DispatchLineInput{{Item: shared.ConsumableRef(1), Qty: 10}},
	})
	require.NoError(t, err)
	require.InDelta(t, 10.0, repo.consumables[1].Stock, 0.0001)
	// 10 units at 4.00 consumed over 5 produced units.
	require.InDelta(t, 8.0, repo.batches[batchID].UnitCost, 0.0001)
	require.InDelta(t, 5.0, repo.batches[batchID].Remaining, 0.0001)
}

func TestDuplicateCodeRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.consumables[1] = inventory.Consumable{ID: 1}
	svc := NewService(repo, newMemoryIdem(), nil)
	ctx := context.Background()

	input := ReceiptInput{
		Code:       "REC-010",
		EmployeeID: 2,
		CostMode:   inventory.CostModeUnit,
		Lines:      []ReceiptLineInput{{Item: shared.ConsumableRef(1), Qty: 1, Cost: 5}},
	}
	_, _, err := svc.PostReceipt(ctx, input)
	require.NoError(t, err)

	_, _, err = svc.PostReceipt(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.InDelta(t, 1.0, repo.consumables[1].Stock, 0.0001)
}

func TestFailedDispatchReleasesCode(t *testing.T) {
	repo := newMemoryRepo()
	repo.consumables[1] = inventory.Consumable{ID: 1, Stock: 2, AvgCost: 5}
	idem := newMemoryIdem()
	svc := NewService(repo, idem, nil)
	ctx := context.Background()

	_, _, err := svc.PostDispatch(ctx, DispatchInput{
		Code:       "SAL-010",
		EmployeeID: 2,
		Lines:      []DispatchLineInput{{Item: shared.ConsumableRef(1), Qty: 5}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.InDelta(t, 2.0, repo.consumables[1].Stock, 0.0001)

	// The code is free again for the corrected retry.
	_, _, err = svc.PostDispatch(ctx, DispatchInput{
		Code:       "SAL-010",
		EmployeeID: 2,
		Lines:      []DispatchLineInput{{Item: shared.ConsumableRef(1), Qty: 2}},
	})
	require.NoError(t, err)
}
