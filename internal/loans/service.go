package loans

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/almacen-erp/almacen-erp/internal/inventory"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

const refModule = "PRESTAMOS"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Loan, []Line, error)
	List(ctx context.Context, status Status, p shared.Pagination) ([]Loan, error)
	ListReturns(ctx context.Context, lineID int64) ([]Return, error)
}

// Service tracks stock loaned out to people. Stock leaves the ledger at
// creation time; returns reconcile the lines later, restoring stock only
// when the material comes back in good condition.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditRecorder
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// LineInput is one requested loan line.
type LineInput struct {
	Item shared.ItemRef
	Qty  float64
}

// CreateInput describes a new loan.
type CreateInput struct {
	Solicitant string
	EmployeeID int64
	Notes      string
	Lines      []LineInput
}

// ReturnInput describes one return event against a line.
type ReturnInput struct {
	LineID      int64
	Qty         float64
	Disposition string
	ActorID     int64
}

// Create opens a loan and decrements stock for every line immediately. Part
// lines are served from the oldest batch whose remaining quantity covers the
// whole line; a line is never split across batches, so a part with enough
// aggregate stock but no single batch large enough fails the loan.
func (s *Service) Create(ctx context.Context, input CreateInput) (Loan, []Line, error) {
	if err := validateCreate(input); err != nil {
		return Loan{}, nil, err
	}
	var loan Loan
	var lines []Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		id, err := repo.InsertLoan(ctx, Loan{
			Solicitant: input.Solicitant,
			EmployeeID: input.EmployeeID,
			Notes:      input.Notes,
			Status:     StatusActive,
		})
		if err != nil {
			return err
		}
		loan = Loan{ID: id, Solicitant: input.Solicitant, EmployeeID: input.EmployeeID, Notes: input.Notes, Status: StatusActive}
		for _, req := range input.Lines {
			line := Line{LoanID: id, ItemKind: req.Item.Kind, ItemID: req.Item.ID, Qty: req.Qty}
			if req.Item.Kind == shared.ItemConsumable {
				_, err = inventory.DispatchConsumableTx(ctx, repo, inventory.DispatchInput{
					ConsumableID: req.Item.ID,
					Qty:          req.Qty,
					RefModule:    refModule,
					ActorID:      input.EmployeeID,
					Note:         input.Notes,
				})
			} else {
				line.BatchID, err = takeFromSingleBatch(ctx, repo, req.Item.ID, req.Qty, input.EmployeeID, input.Notes)
			}
			if err != nil {
				return err
			}
			line.ID, err = repo.InsertLine(ctx, line)
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}
		return nil
	})
	if err != nil {
		return Loan{}, nil, err
	}
	s.recordAudit(ctx, input.EmployeeID, "loans:create", loan.ID, map[string]any{
		"solicitant": input.Solicitant, "lines": len(lines),
	})
	return loan, lines, nil
}

// RegisterReturn applies one return event to a line. A BUENO disposition
// restores stock; any other disposition only reconciles the line. The loan
// closes once every line has its full quantity back, good or not.
func (s *Service) RegisterReturn(ctx context.Context, input ReturnInput) (Line, Status, error) {
	if input.LineID <= 0 {
		return Line{}, "", fmt.Errorf("%w: line id required", shared.ErrValidation)
	}
	if input.Qty <= 0 {
		return Line{}, "", fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if strings.TrimSpace(input.Disposition) == "" {
		return Line{}, "", fmt.Errorf("%w: disposition required", shared.ErrValidation)
	}
	var line Line
	status := StatusActive
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		var err error
		line, err = repo.GetLineForUpdate(ctx, input.LineID)
		if err != nil {
			return err
		}
		loan, err := repo.GetLoanForUpdate(ctx, line.LoanID)
		if err != nil {
			return err
		}
		if loan.Status != StatusActive {
			return fmt.Errorf("%w: loan %d is already %s", shared.ErrInvalidState, loan.ID, loan.Status)
		}
		if input.Qty > line.Outstanding() {
			return fmt.Errorf("%w: %.2f outstanding on line %d", shared.ErrOverReturn, line.Outstanding(), line.ID)
		}
		line.Returned += input.Qty
		if err := repo.SetLineReturned(ctx, line.ID, line.Returned); err != nil {
			return err
		}
		if _, err := repo.InsertReturn(ctx, Return{LineID: line.ID, Qty: input.Qty, Disposition: input.Disposition}); err != nil {
			return err
		}
		if input.Disposition == DispositionGood {
			if err := restoreStock(ctx, repo, line, input.Qty, input.ActorID); err != nil {
				return err
			}
		}
		closed, err := loanSettled(ctx, repo, line.LoanID)
		if err != nil {
			return err
		}
		if closed {
			if err := repo.CloseLoan(ctx, line.LoanID); err != nil {
				return err
			}
			status = StatusClosed
		}
		return nil
	})
	if err != nil {
		return Line{}, "", err
	}
	s.recordAudit(ctx, input.ActorID, "loans:return", line.LoanID, map[string]any{
		"line_id": line.ID, "qty": input.Qty, "disposition": input.Disposition, "status": string(status),
	})
	return line, status, nil
}

// Get loads a loan with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Loan, []Line, error) {
	return s.repo.Get(ctx, id)
}

// List returns recent loans.
func (s *Service) List(ctx context.Context, status Status, p shared.Pagination) ([]Loan, error) {
	if status != "" && status != StatusActive && status != StatusClosed {
		return nil, fmt.Errorf("%w: unknown loan status %q", shared.ErrValidation, status)
	}
	return s.repo.List(ctx, status, p)
}

// Returns lists the return events of a line.
func (s *Service) Returns(ctx context.Context, lineID int64) ([]Return, error) {
	if lineID <= 0 {
		return nil, fmt.Errorf("%w: line id required", shared.ErrValidation)
	}
	return s.repo.ListReturns(ctx, lineID)
}

// takeFromSingleBatch finds the oldest open batch that can cover the whole
// quantity and depletes it.
func takeFromSingleBatch(ctx context.Context, repo TxRepository, partID int64, qty float64, actorID int64, note string) (int64, error) {
	batches, err := repo.ListOpenBatchesForUpdate(ctx, partID)
	if err != nil {
		return 0, err
	}
	for _, batch := range batches {
		if batch.Remaining >= qty {
			_, err := inventory.DepleteSpecificBatchTx(ctx, repo, batch.ID, qty, inventory.DepleteInput{
				PartID:    partID,
				RefModule: refModule,
				ActorID:   actorID,
				Note:      note,
			})
			return batch.ID, err
		}
	}
	return 0, fmt.Errorf("%w: no single batch of part %d covers %.2f", shared.ErrInsufficientBatchStock, partID, qty)
}

// restoreStock puts a good-condition return back on the ledger. Consumables
// regain stock at the unchanged average cost. Parts are credited to the most
// recently created batch for the part, not necessarily the batch the loan
// took from.
func restoreStock(ctx context.Context, repo TxRepository, line Line, qty float64, actorID int64) error {
	if line.ItemKind == shared.ItemConsumable {
		consumable, err := repo.GetConsumableForUpdate(ctx, line.ItemID)
		if err != nil {
			return err
		}
		if err := repo.UpdateConsumable(ctx, consumable.ID, consumable.Stock+qty, consumable.AvgCost); err != nil {
			return err
		}
		_, err = repo.InsertMovement(ctx, inventory.Movement{
			ItemKind:  shared.ItemConsumable,
			ItemID:    consumable.ID,
			QtyIn:     qty,
			UnitCost:  consumable.AvgCost,
			RefModule: refModule,
			ActorID:   actorID,
			Note:      fmt.Sprintf("devolucion prestamo linea %d", line.ID),
			PostedAt:  time.Now().UTC(),
		})
		return err
	}
	batch, err := repo.NewestBatchForUpdate(ctx, line.ItemID)
	if err != nil {
		return err
	}
	if err := repo.UpdateBatchRemaining(ctx, batch.ID, batch.Remaining+qty); err != nil {
		return err
	}
	_, err = repo.InsertMovement(ctx, inventory.Movement{
		ItemKind:  shared.ItemPart,
		ItemID:    line.ItemID,
		BatchID:   batch.ID,
		QtyIn:     qty,
		UnitCost:  batch.UnitCost,
		RefModule: refModule,
		ActorID:   actorID,
		Note:      fmt.Sprintf("devolucion prestamo linea %d", line.ID),
		PostedAt:  time.Now().UTC(),
	})
	return err
}

// loanSettled reports whether every line of the loan has loaned == returned.
func loanSettled(ctx context.Context, repo TxRepository, loanID int64) (bool, error) {
	lines, err := repo.ListLinesForUpdate(ctx, loanID)
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if line.Outstanding() > 1e-9 {
			return false, nil
		}
	}
	return true, nil
}

func validateCreate(input CreateInput) error {
	if strings.TrimSpace(input.Solicitant) == "" {
		return fmt.Errorf("%w: solicitant required", shared.ErrValidation)
	}
	if input.EmployeeID <= 0 {
		return fmt.Errorf("%w: employee id required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	for i, line := range input.Lines {
		if err := line.Item.Validate(); err != nil {
			return err
		}
		if line.Qty <= 0 {
			return fmt.Errorf("%w: line %d quantity must be positive", shared.ErrValidation, i+1)
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
		Entity:   "loan",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
