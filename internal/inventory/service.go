package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ListBatches(ctx context.Context, partID int64) ([]Batch, error)
	PartStock(ctx context.Context, partID int64) (float64, error)
	GetConsumable(ctx context.Context, id int64) (Consumable, error)
}

// Service coordinates the two valuation models: moving weighted average for
// consumables and the FIFO batch ledger for parts.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditRecorder
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// ReceiveInput describes an inbound consumable receipt.
type ReceiveInput struct {
	ConsumableID int64
	Qty          float64
	Cost         float64
	CostMode     CostMode
	AppliesTax   bool
	RefModule    string
	RefID        string
	ActorID      int64
	Note         string
}

// DispatchInput describes an outbound consumable movement.
type DispatchInput struct {
	ConsumableID int64
	Qty          float64
	RefModule    string
	RefID        string
	ActorID      int64
	Note         string
}

// CreateBatchInput describes a new part batch.
type CreateBatchInput struct {
	PartID      int64
	Qty         float64
	UnitCost    float64
	EntryLineID int64
	RefModule   string
	RefID       string
	ActorID     int64
	Note        string
}

// DepleteInput describes an outbound part movement served FIFO.
type DepleteInput struct {
	PartID    int64
	Qty       float64
	RefModule string
	RefID     string
	ActorID   int64
	Note      string
}

// ReceiveConsumable posts an inbound receipt and recomputes the moving
// weighted average under a row lock on the consumable.
func (s *Service) ReceiveConsumable(ctx context.Context, input ReceiveInput) (ConsumableBalance, error) {
	if input.ConsumableID <= 0 {
		return ConsumableBalance{}, fmt.Errorf("%w: consumable id required", shared.ErrValidation)
	}
	unitCost, err := FinalUnitCost(input.Qty, input.Cost, input.CostMode, input.AppliesTax)
	if err != nil {
		return ConsumableBalance{}, err
	}
	if err := validateRef(input.RefID); err != nil {
		return ConsumableBalance{}, err
	}
	var balance ConsumableBalance
	err = s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		balance, err = ReceiveConsumableTx(ctx, store, input, unitCost)
		return err
	})
	if err != nil {
		return ConsumableBalance{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:receive", "consumable", input.ConsumableID, map[string]any{
		"qty": input.Qty, "unit_cost": unitCost, "new_stock": balance.Stock, "new_avg_cost": balance.AvgCost,
	})
	return balance, nil
}

// ReceiveConsumableTx applies a receipt inside an existing transaction. The
// unit cost must already be resolved through FinalUnitCost.
func ReceiveConsumableTx(ctx context.Context, store TxStore, input ReceiveInput, unitCost float64) (ConsumableBalance, error) {
	consumable, err := store.GetConsumableForUpdate(ctx, input.ConsumableID)
	if err != nil {
		return ConsumableBalance{}, err
	}
	newStock := consumable.Stock + input.Qty
	newAvg := WeightedAverage(consumable.Stock, consumable.AvgCost, input.Qty, unitCost)
	if err := store.UpdateConsumable(ctx, consumable.ID, newStock, newAvg); err != nil {
		return ConsumableBalance{}, err
	}
	_, err = store.InsertMovement(ctx, Movement{
		ItemKind:  shared.ItemConsumable,
		ItemID:    consumable.ID,
		QtyIn:     input.Qty,
		UnitCost:  unitCost,
		RefModule: input.RefModule,
		RefID:     input.RefID,
		ActorID:   input.ActorID,
		Note:      input.Note,
		PostedAt:  time.Now().UTC(),
	})
	if err != nil {
		return ConsumableBalance{}, err
	}
	return ConsumableBalance{ConsumableID: consumable.ID, Stock: newStock, AvgCost: newAvg}, nil
}

// DispatchConsumable posts an outbound movement at the current average cost.
// The average itself does not change; the cost is snapshotted on the
// movement row for downstream costing.
func (s *Service) DispatchConsumable(ctx context.Context, input DispatchInput) (ConsumableBalance, error) {
	if input.ConsumableID <= 0 {
		return ConsumableBalance{}, fmt.Errorf("%w: consumable id required", shared.ErrValidation)
	}
	if input.Qty <= 0 {
		return ConsumableBalance{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if err := validateRef(input.RefID); err != nil {
		return ConsumableBalance{}, err
	}
	var balance ConsumableBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		var err error
		balance, err = DispatchConsumableTx(ctx, store, input)
		return err
	})
	if err != nil {
		return ConsumableBalance{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:dispatch", "consumable", input.ConsumableID, map[string]any{
		"qty": input.Qty, "new_stock": balance.Stock,
	})
	return balance, nil
}

// DispatchConsumableTx applies an outbound consumable movement inside an
// existing transaction.
func DispatchConsumableTx(ctx context.Context, store TxStore, input DispatchInput) (ConsumableBalance, error) {
	if input.ConsumableID <= 0 {
		return ConsumableBalance{}, fmt.Errorf("%w: consumable id required", shared.ErrValidation)
	}
	if input.Qty <= 0 {
		return ConsumableBalance{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	consumable, err := store.GetConsumableForUpdate(ctx, input.ConsumableID)
	if err != nil {
		return ConsumableBalance{}, err
	}
	if input.Qty > consumable.Stock {
		return ConsumableBalance{}, shared.ErrInsufficientStock
	}
	newStock := consumable.Stock - input.Qty
	if err := store.UpdateConsumable(ctx, consumable.ID, newStock, consumable.AvgCost); err != nil {
		return ConsumableBalance{}, err
	}
	_, err = store.InsertMovement(ctx, Movement{
		ItemKind:  shared.ItemConsumable,
		ItemID:    consumable.ID,
		QtyOut:    input.Qty,
		UnitCost:  consumable.AvgCost,
		RefModule: input.RefModule,
		RefID:     input.RefID,
		ActorID:   input.ActorID,
		Note:      input.Note,
		PostedAt:  time.Now().UTC(),
	})
	if err != nil {
		return ConsumableBalance{}, err
	}
	return ConsumableBalance{ConsumableID: consumable.ID, Stock: newStock, AvgCost: consumable.AvgCost}, nil
}

// CreateBatch opens a new FIFO batch for a part.
func (s *Service) CreateBatch(ctx context.Context, input CreateBatchInput) (int64, error) {
	if err := validateRef(input.RefID); err != nil {
		return 0, err
	}
	var batchID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		var err error
		batchID, err = CreateBatchTx(ctx, store, input)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:batch-create", "part", input.PartID, map[string]any{
		"batch_id": batchID, "qty": input.Qty, "unit_cost": input.UnitCost,
	})
	return batchID, nil
}

// CreateBatchTx opens a batch inside an existing transaction.
func CreateBatchTx(ctx context.Context, store TxStore, input CreateBatchInput) (int64, error) {
	if input.PartID <= 0 {
		return 0, fmt.Errorf("%w: part id required", shared.ErrValidation)
	}
	if input.Qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if input.UnitCost < 0 {
		return 0, fmt.Errorf("%w: unit cost must not be negative", shared.ErrValidation)
	}
	if _, err := store.GetPart(ctx, input.PartID); err != nil {
		return 0, err
	}
	batchID, err := store.InsertBatch(ctx, Batch{
		PartID:      input.PartID,
		Remaining:   input.Qty,
		UnitCost:    input.UnitCost,
		EntryLineID: input.EntryLineID,
	})
	if err != nil {
		return 0, err
	}
	_, err = store.InsertMovement(ctx, Movement{
		ItemKind:  shared.ItemPart,
		ItemID:    input.PartID,
		BatchID:   batchID,
		QtyIn:     input.Qty,
		UnitCost:  input.UnitCost,
		RefModule: input.RefModule,
		RefID:     input.RefID,
		ActorID:   input.ActorID,
		Note:      input.Note,
		PostedAt:  time.Now().UTC(),
	})
	if err != nil {
		return 0, err
	}
	return batchID, nil
}

// DepleteBatches serves an outbound part movement oldest batch first,
// splitting across batches until the quantity is covered. The aggregate
// must cover the full quantity or nothing is taken.
func (s *Service) DepleteBatches(ctx context.Context, input DepleteInput) ([]BatchTake, error) {
	if err := validateRef(input.RefID); err != nil {
		return nil, err
	}
	var takes []BatchTake
	err := s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		var err error
		takes, err = DepleteBatchesTx(ctx, store, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:deplete", "part", input.PartID, map[string]any{
		"qty": input.Qty, "batches": len(takes),
	})
	return takes, nil
}

// DepleteBatchesTx performs the FIFO depletion inside an existing
// transaction.
func DepleteBatchesTx(ctx context.Context, store TxStore, input DepleteInput) ([]BatchTake, error) {
	if input.PartID <= 0 {
		return nil, fmt.Errorf("%w: part id required", shared.ErrValidation)
	}
	if input.Qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if _, err := store.GetPart(ctx, input.PartID); err != nil {
		return nil, err
	}
	batches, err := store.ListOpenBatchesForUpdate(ctx, input.PartID)
	if err != nil {
		return nil, err
	}
	remaining := input.Qty
	takes := []BatchTake{}
	for _, batch := range batches {
		if remaining <= 0 {
			break
		}
		take := batch.Remaining
		if take > remaining {
			take = remaining
		}
		if err := store.UpdateBatchRemaining(ctx, batch.ID, batch.Remaining-take); err != nil {
			return nil, err
		}
		_, err = store.InsertMovement(ctx, Movement{
			ItemKind:  shared.ItemPart,
			ItemID:    input.PartID,
			BatchID:   batch.ID,
			QtyOut:    take,
			UnitCost:  batch.UnitCost,
			RefModule: input.RefModule,
			RefID:     input.RefID,
			ActorID:   input.ActorID,
			Note:      input.Note,
			PostedAt:  time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		takes = append(takes, BatchTake{BatchID: batch.ID, Qty: take, UnitCost: batch.UnitCost})
		remaining -= take
	}
	if remaining > 0 {
		return nil, shared.ErrInsufficientStock
	}
	return takes, nil
}

// DepleteSpecificBatch takes the quantity from one caller-chosen batch.
func (s *Service) DepleteSpecificBatch(ctx context.Context, batchID int64, qty float64, input DepleteInput) (BatchTake, error) {
	if err := validateRef(input.RefID); err != nil {
		return BatchTake{}, err
	}
	var take BatchTake
	err := s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		var err error
		take, err = DepleteSpecificBatchTx(ctx, store, batchID, qty, input)
		return err
	})
	if err != nil {
		return BatchTake{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:deplete-batch", "batch", batchID, map[string]any{"qty": qty})
	return take, nil
}

// DepleteSpecificBatchTx decrements one batch inside an existing
// transaction, failing when the batch cannot cover the quantity.
func DepleteSpecificBatchTx(ctx context.Context, store TxStore, batchID int64, qty float64, input DepleteInput) (BatchTake, error) {
	if batchID <= 0 {
		return BatchTake{}, fmt.Errorf("%w: batch id required", shared.ErrValidation)
	}
	if qty <= 0 {
		return BatchTake{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	batch, err := store.GetBatchForUpdate(ctx, batchID)
	if err != nil {
		return BatchTake{}, err
	}
	if qty > batch.Remaining {
		return BatchTake{}, shared.ErrInsufficientBatchStock
	}
	if err := store.UpdateBatchRemaining(ctx, batch.ID, batch.Remaining-qty); err != nil {
		return BatchTake{}, err
	}
	_, err = store.InsertMovement(ctx, Movement{
		ItemKind:  shared.ItemPart,
		ItemID:    batch.PartID,
		BatchID:   batch.ID,
		QtyOut:    qty,
		UnitCost:  batch.UnitCost,
		RefModule: input.RefModule,
		RefID:     input.RefID,
		ActorID:   input.ActorID,
		Note:      input.Note,
		PostedAt:  time.Now().UTC(),
	})
	if err != nil {
		return BatchTake{}, err
	}
	return BatchTake{BatchID: batch.ID, Qty: qty, UnitCost: batch.UnitCost}, nil
}

// ReviseBatchCost adds a signed delta to a batch's final unit cost without
// touching its quantity. The resulting cost must stay non-negative.
func (s *Service) ReviseBatchCost(ctx context.Context, batchID int64, costDelta float64, actorID int64) (float64, error) {
	var newCost float64
	err := s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		var err error
		newCost, err = ReviseBatchCostTx(ctx, store, batchID, costDelta)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, actorID, "inventory:revalue-batch", "batch", batchID, map[string]any{
		"cost_delta": costDelta, "new_cost": newCost,
	})
	return newCost, nil
}

// ReviseBatchCostTx applies the cost delta inside an existing transaction.
func ReviseBatchCostTx(ctx context.Context, store TxStore, batchID int64, costDelta float64) (float64, error) {
	if batchID <= 0 {
		return 0, fmt.Errorf("%w: batch id required", shared.ErrValidation)
	}
	batch, err := store.GetBatchForUpdate(ctx, batchID)
	if err != nil {
		return 0, err
	}
	newCost := batch.UnitCost + costDelta
	if newCost < 0 {
		return 0, fmt.Errorf("%w: revaluation would leave a negative unit cost", shared.ErrValidation)
	}
	if err := store.UpdateBatchCost(ctx, batch.ID, newCost); err != nil {
		return 0, err
	}
	return newCost, nil
}

// PartStock reports the live aggregate stock for a part.
func (s *Service) PartStock(ctx context.Context, partID int64) (float64, error) {
	if partID <= 0 {
		return 0, fmt.Errorf("%w: part id required", shared.ErrValidation)
	}
	return s.repo.PartStock(ctx, partID)
}

// ListBatches reports the open batches for a part, oldest first.
func (s *Service) ListBatches(ctx context.Context, partID int64) ([]Batch, error) {
	if partID <= 0 {
		return nil, fmt.Errorf("%w: part id required", shared.ErrValidation)
	}
	return s.repo.ListBatches(ctx, partID)
}

// Movements lists the kardex for an item.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if !filter.Kind.Valid() || filter.ItemID <= 0 {
		return nil, fmt.Errorf("%w: item kind and id required", shared.ErrValidation)
	}
	return s.repo.ListMovements(ctx, filter)
}

// ConsumableBalance reports a consumable's live stock and average cost.
func (s *Service) ConsumableBalance(ctx context.Context, id int64) (ConsumableBalance, error) {
	consumable, err := s.repo.GetConsumable(ctx, id)
	if err != nil {
		return ConsumableBalance{}, err
	}
	return ConsumableBalance{ConsumableID: consumable.ID, Stock: consumable.Stock, AvgCost: consumable.AvgCost}, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

func validateRef(refID string) error {
	if refID == "" {
		return nil
	}
	if _, err := uuid.Parse(refID); err != nil {
		return fmt.Errorf("%w: invalid ref id", shared.ErrValidation)
	}
	return nil
}
