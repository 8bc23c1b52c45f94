package adjustments

import (
	"context"
	"fmt"
	"math"

	"github.com/almacen-erp/almacen-erp/internal/inventory"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Adjustment, []Line, error)
	List(ctx context.Context, limit int) ([]Adjustment, error)
}

// Service posts and revises manual stock adjustments. A revision fully
// reverses the previously posted lines before applying the new ones, all
// inside one transaction.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditRecorder
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// LineInput describes one requested detail. Qty is the positive magnitude;
// the adjustment type decides the sign. BatchID is required for SALIDA and
// REVALORIZACION part lines and forbidden for ENTRADA part lines, where the
// ledger creates the batch and the line records its id.
type LineInput struct {
	Item      shared.ItemRef
	Qty       float64
	UnitCost  float64
	CostDelta float64
	BatchID   int64
}

// PostInput describes a new or replacing adjustment.
type PostInput struct {
	Type       Type
	EmployeeID int64
	Reason     string
	Lines      []LineInput
}

// Post creates an adjustment and applies every line's effect atomically.
func (s *Service) Post(ctx context.Context, input PostInput) (Adjustment, []Line, error) {
	if err := validateInput(input); err != nil {
		return Adjustment{}, nil, err
	}
	var adj Adjustment
	var lines []Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		id, err := repo.InsertAdjustment(ctx, Adjustment{Type: input.Type, EmployeeID: input.EmployeeID, Reason: input.Reason})
		if err != nil {
			return err
		}
		adj = Adjustment{ID: id, Type: input.Type, EmployeeID: input.EmployeeID, Reason: input.Reason}
		lines, err = s.applyLines(ctx, repo, id, input)
		return err
	})
	if err != nil {
		return Adjustment{}, nil, err
	}
	s.recordAudit(ctx, input.EmployeeID, "adjustments:post", adj.ID, map[string]any{
		"type": string(input.Type), "lines": len(lines), "reason": input.Reason,
	})
	return adj, lines, nil
}

// Revise replaces a posted adjustment: every original line is reversed,
// then the new detail set is applied, in a single transaction. An empty
// line set turns the revision into a plain revert.
func (s *Service) Revise(ctx context.Context, id int64, input PostInput) (Adjustment, []Line, error) {
	if err := validateInput(input); err != nil {
		return Adjustment{}, nil, err
	}
	var adj Adjustment
	var lines []Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		prev, err := repo.GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		prevLines, err := repo.ListLines(ctx, id)
		if err != nil {
			return err
		}
		for _, line := range prevLines {
			if err := revertLine(ctx, repo, prev.Type, line); err != nil {
				return err
			}
		}
		if err := repo.DeleteLines(ctx, id); err != nil {
			return err
		}
		if err := repo.TouchAdjustment(ctx, id, input.Type, input.Reason); err != nil {
			return err
		}
		adj = Adjustment{ID: id, Type: input.Type, EmployeeID: prev.EmployeeID, Reason: input.Reason}
		lines, err = s.applyLines(ctx, repo, id, input)
		return err
	})
	if err != nil {
		return Adjustment{}, nil, err
	}
	s.recordAudit(ctx, input.EmployeeID, "adjustments:revise", id, map[string]any{
		"type": string(input.Type), "lines": len(lines),
	})
	return adj, lines, nil
}

// Get loads an adjustment with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Adjustment, []Line, error) {
	return s.repo.Get(ctx, id)
}

// List returns recent adjustments.
func (s *Service) List(ctx context.Context, limit int) ([]Adjustment, error) {
	return s.repo.List(ctx, limit)
}

func (s *Service) applyLines(ctx context.Context, repo TxRepository, adjustmentID int64, input PostInput) ([]Line, error) {
	lines := make([]Line, 0, len(input.Lines))
	for _, req := range input.Lines {
		line, err := applyLine(ctx, repo, adjustmentID, input, req)
		if err != nil {
			return nil, err
		}
		line.ID, err = repo.InsertLine(ctx, line)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// applyLine runs the forward effect of one requested line and returns the
// stored form (signed quantity, resolved batch id).
func applyLine(ctx context.Context, repo TxRepository, adjustmentID int64, input PostInput, req LineInput) (Line, error) {
	line := Line{
		AdjustmentID: adjustmentID,
		ItemKind:     req.Item.Kind,
		ItemID:       req.Item.ID,
		UnitCost:     req.UnitCost,
		CostDelta:    req.CostDelta,
		BatchID:      req.BatchID,
	}
	switch input.Type {
	case TypeEntrada:
		line.Qty = req.Qty
		if req.Item.Kind == shared.ItemConsumable {
			_, err := inventory.ReceiveConsumableTx(ctx, repo, inventory.ReceiveInput{
				ConsumableID: req.Item.ID,
				Qty:          req.Qty,
				RefModule:    "AJUSTES",
				ActorID:      input.EmployeeID,
				Note:         input.Reason,
			}, req.UnitCost)
			return line, err
		}
		batchID, err := inventory.CreateBatchTx(ctx, repo, inventory.CreateBatchInput{
			PartID:    req.Item.ID,
			Qty:       req.Qty,
			UnitCost:  req.UnitCost,
			RefModule: "AJUSTES",
			ActorID:   input.EmployeeID,
			Note:      input.Reason,
		})
		line.BatchID = batchID
		return line, err
	case TypeSalida:
		line.Qty = -req.Qty
		if req.Item.Kind == shared.ItemConsumable {
			_, err := inventory.DispatchConsumableTx(ctx, repo, inventory.DispatchInput{
				ConsumableID: req.Item.ID,
				Qty:          req.Qty,
				RefModule:    "AJUSTES",
				ActorID:      input.EmployeeID,
				Note:         input.Reason,
			})
			return line, err
		}
		_, err := inventory.DepleteSpecificBatchTx(ctx, repo, req.BatchID, req.Qty, inventory.DepleteInput{
			PartID:    req.Item.ID,
			RefModule: "AJUSTES",
			ActorID:   input.EmployeeID,
			Note:      input.Reason,
		})
		return line, err
	case TypeRevalorizacion:
		if req.Item.Kind == shared.ItemConsumable {
			return line, revalueConsumable(ctx, repo, req.Item.ID, req.CostDelta)
		}
		_, err := inventory.ReviseBatchCostTx(ctx, repo, req.BatchID, req.CostDelta)
		return line, err
	}
	return Line{}, fmt.Errorf("%w: unknown adjustment type %q", shared.ErrValidation, input.Type)
}

// revertLine undoes the stored effect of one line, mirroring applyLine.
func revertLine(ctx context.Context, repo TxRepository, adjType Type, line Line) error {
	switch adjType {
	case TypeEntrada:
		if line.ItemKind == shared.ItemConsumable {
			return subtractConsumableStock(ctx, repo, line.ItemID, line.Qty)
		}
		batch, err := repo.GetBatchForUpdate(ctx, line.BatchID)
		if err != nil {
			return err
		}
		// The batch this entrada created must still be whole; deleting a
		// partially dispatched batch would drop quantity already consumed
		// elsewhere.
		if math.Abs(batch.Remaining-line.Qty) > 1e-9 {
			return fmt.Errorf("%w: batch %d already partially consumed", shared.ErrInvalidState, line.BatchID)
		}
		return repo.DeleteBatch(ctx, line.BatchID)
	case TypeSalida:
		if line.ItemKind == shared.ItemConsumable {
			return addConsumableStock(ctx, repo, line.ItemID, -line.Qty)
		}
		batch, err := repo.GetBatchForUpdate(ctx, line.BatchID)
		if err != nil {
			return err
		}
		return repo.UpdateBatchRemaining(ctx, line.BatchID, batch.Remaining+(-line.Qty))
	case TypeRevalorizacion:
		if line.ItemKind == shared.ItemConsumable {
			return revalueConsumable(ctx, repo, line.ItemID, -line.CostDelta)
		}
		_, err := inventory.ReviseBatchCostTx(ctx, repo, line.BatchID, -line.CostDelta)
		return err
	}
	return fmt.Errorf("%w: unknown adjustment type %q", shared.ErrValidation, adjType)
}

func subtractConsumableStock(ctx context.Context, repo TxRepository, id int64, qty float64) error {
	consumable, err := repo.GetConsumableForUpdate(ctx, id)
	if err != nil {
		return err
	}
	newStock := consumable.Stock - qty
	if newStock < 0 {
		return shared.ErrInsufficientStock
	}
	avg := consumable.AvgCost
	if newStock == 0 {
		avg = 0
	}
	return repo.UpdateConsumable(ctx, id, newStock, avg)
}

func addConsumableStock(ctx context.Context, repo TxRepository, id int64, qty float64) error {
	consumable, err := repo.GetConsumableForUpdate(ctx, id)
	if err != nil {
		return err
	}
	return repo.UpdateConsumable(ctx, id, consumable.Stock+qty, consumable.AvgCost)
}

func revalueConsumable(ctx context.Context, repo TxRepository, id int64, costDelta float64) error {
	consumable, err := repo.GetConsumableForUpdate(ctx, id)
	if err != nil {
		return err
	}
	newAvg := consumable.AvgCost + costDelta
	if newAvg < 0 {
		return fmt.Errorf("%w: revaluation would leave a negative average cost", shared.ErrValidation)
	}
	return repo.UpdateConsumable(ctx, id, consumable.Stock, newAvg)
}

func validateInput(input PostInput) error {
	if !input.Type.Valid() {
		return fmt.Errorf("%w: unknown adjustment type %q", shared.ErrValidation, input.Type)
	}
	if input.EmployeeID <= 0 {
		return fmt.Errorf("%w: employee id required", shared.ErrValidation)
	}
	for i, line := range input.Lines {
		if err := line.Item.Validate(); err != nil {
			return err
		}
		switch input.Type {
		case TypeEntrada:
			if line.Qty <= 0 {
				return fmt.Errorf("%w: line %d quantity must be positive", shared.ErrValidation, i+1)
			}
			if line.UnitCost < 0 {
				return fmt.Errorf("%w: line %d unit cost must not be negative", shared.ErrValidation, i+1)
			}
		case TypeSalida:
			if line.Qty <= 0 {
				return fmt.Errorf("%w: line %d quantity must be positive", shared.ErrValidation, i+1)
			}
			if line.Item.Kind == shared.ItemPart && line.BatchID <= 0 {
				return fmt.Errorf("%w: line %d batch id required for part salida", shared.ErrValidation, i+1)
			}
		case TypeRevalorizacion:
			if line.CostDelta == 0 {
				return fmt.Errorf("%w: line %d cost delta required", shared.ErrValidation, i+1)
			}
			if line.Qty != 0 {
				return fmt.Errorf("%w: line %d revaluation must not carry a quantity", shared.ErrValidation, i+1)
			}
			if line.Item.Kind == shared.ItemPart && line.BatchID <= 0 {
				return fmt.Errorf("%w: line %d batch id required for part revaluation", shared.ErrValidation, i+1)
			}
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "adjustment",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
