package counts

import (
	"context"
	"fmt"
	"time"

	"github.com/almacen-erp/almacen-erp/internal/inventory"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

const refModule = "CONTEOS"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Count, []Line, error)
	List(ctx context.Context, limit int) ([]Count, error)
}

// Service manages physical inventory counts. A count captures figures
// without touching the ledger; Apply writes them in one transaction, once.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditRecorder
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// LineInput is one counted item.
type LineInput struct {
	Item     shared.ItemRef
	Qty      float64
	UnitCost float64
}

// CreateInput describes a new count. A count created with Completed true is
// immediately eligible for application.
type CreateInput struct {
	EmployeeID int64
	Notes      string
	Completed  bool
	Lines      []LineInput
}

// Create records a count snapshot. No stock changes here.
func (s *Service) Create(ctx context.Context, input CreateInput) (Count, []Line, error) {
	if input.EmployeeID <= 0 {
		return Count{}, nil, fmt.Errorf("%w: employee id required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return Count{}, nil, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	for i, line := range input.Lines {
		if err := line.Item.Validate(); err != nil {
			return Count{}, nil, err
		}
		if line.Qty < 0 {
			return Count{}, nil, fmt.Errorf("%w: line %d quantity must not be negative", shared.ErrValidation, i+1)
		}
		if line.UnitCost < 0 {
			return Count{}, nil, fmt.Errorf("%w: line %d unit cost must not be negative", shared.ErrValidation, i+1)
		}
	}
	status := StatusOpen
	if input.Completed {
		status = StatusCompleted
	}
	var count Count
	var lines []Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		id, err := repo.InsertCount(ctx, Count{EmployeeID: input.EmployeeID, Notes: input.Notes, Status: status})
		if err != nil {
			return err
		}
		count = Count{ID: id, EmployeeID: input.EmployeeID, Notes: input.Notes, Status: status}
		for _, req := range input.Lines {
			line := Line{CountID: id, ItemKind: req.Item.Kind, ItemID: req.Item.ID, Qty: req.Qty, UnitCost: req.UnitCost}
			line.ID, err = repo.InsertLine(ctx, line)
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}
		return nil
	})
	if err != nil {
		return Count{}, nil, err
	}
	s.recordAudit(ctx, input.EmployeeID, "counts:create", count.ID, map[string]any{"lines": len(lines), "status": string(status)})
	return count, lines, nil
}

// Complete moves an open count to COMPLETADO.
func (s *Service) Complete(ctx context.Context, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		count, err := repo.GetCountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if count.Status != StatusOpen {
			return fmt.Errorf("%w: count %d is %s, not %s", shared.ErrInvalidState, id, count.Status, StatusOpen)
		}
		return repo.SetStatus(ctx, id, StatusCompleted, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "counts:complete", id, nil)
	return nil
}

// Apply writes a completed count's figures to the ledger. Consumable lines
// overwrite the live stock and average cost with the counted values, a reset
// rather than a delta. Part lines open a fresh batch for the counted
// quantity. A count that is not COMPLETADO, including one already APLICADO,
// is rejected and nothing is written.
func (s *Service) Apply(ctx context.Context, id, actorID int64) (Count, error) {
	var count Count
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		var err error
		count, err = repo.GetCountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if count.Status != StatusCompleted {
			return fmt.Errorf("%w: count %d is %s, only %s can be applied", shared.ErrInvalidState, id, count.Status, StatusCompleted)
		}
		lines, err := repo.ListLines(ctx, id)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := applyLine(ctx, repo, line, actorID); err != nil {
				return err
			}
		}
		if err := repo.SetStatus(ctx, id, StatusApplied, true); err != nil {
			return err
		}
		count.Status = StatusApplied
		return nil
	})
	if err != nil {
		return Count{}, err
	}
	s.recordAudit(ctx, actorID, "counts:apply", id, nil)
	return count, nil
}

// Get loads a count with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Count, []Line, error) {
	return s.repo.Get(ctx, id)
}

// List returns recent counts.
func (s *Service) List(ctx context.Context, limit int) ([]Count, error) {
	return s.repo.List(ctx, limit)
}

func applyLine(ctx context.Context, repo TxRepository, line Line, actorID int64) error {
	if line.ItemKind == shared.ItemConsumable {
		consumable, err := repo.GetConsumableForUpdate(ctx, line.ItemID)
		if err != nil {
			return err
		}
		if err := repo.UpdateConsumable(ctx, consumable.ID, line.Qty, line.UnitCost); err != nil {
			return err
		}
		delta := line.Qty - consumable.Stock
		movement := inventory.Movement{
			ItemKind:  shared.ItemConsumable,
			ItemID:    consumable.ID,
			UnitCost:  line.UnitCost,
			RefModule: refModule,
			ActorID:   actorID,
			Note:      fmt.Sprintf("conteo fisico %d", line.CountID),
			PostedAt:  time.Now().UTC(),
		}
		if delta >= 0 {
			movement.QtyIn = delta
		} else {
			movement.QtyOut = -delta
		}
		_, err = repo.InsertMovement(ctx, movement)
		return err
	}
	if line.Qty <= 0 {
		return nil
	}
	batchID, err := inventory.CreateBatchTx(ctx, repo, inventory.CreateBatchInput{
		PartID:    line.ItemID,
		Qty:       line.Qty,
		UnitCost:  line.UnitCost,
		RefModule: refModule,
		ActorID:   actorID,
		Note:      fmt.Sprintf("conteo fisico %d", line.CountID),
	})
	if err != nil {
		return err
	}
	return repo.SetLineBatch(ctx, line.ID, batchID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "count",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
