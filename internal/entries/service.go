package entries

import (
	"context"
	"fmt"
	"strings"

	"github.com/almacen-erp/almacen-erp/internal/inventory"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

const refModule = "ENTRADAS"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Entry, []Line, error)
	List(ctx context.Context, kind Kind, limit int) ([]Entry, error)
}

// IdempotencyGuard deduplicates entry codes across retries.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service posts receipt, dispatch and production documents against the
// ledger.
type Service struct {
	repo  RepositoryPort
	idem  IdempotencyGuard
	audit shared.AuditRecorder
}

// NewService builds Service. idem may be nil when the caller handles
// deduplication itself.
func NewService(repo RepositoryPort, idem IdempotencyGuard, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, idem: idem, audit: audit}
}

// ReceiptLineInput is one received item. Cost is interpreted through the
// receipt's cost mode.
type ReceiptLineInput struct {
	Item shared.ItemRef
	Qty  float64
	Cost float64
}

// ReceiptInput describes an inbound supplier receipt.
type ReceiptInput struct {
	Code       string
	SupplierID int64
	EmployeeID int64
	CostMode   inventory.CostMode
	AppliesTax bool
	Notes      string
	Lines      []ReceiptLineInput
}

// DispatchLineInput is one issued item.
type DispatchLineInput struct {
	Item shared.ItemRef
	Qty  float64
}

// DispatchInput describes an outbound issue to a bus.
type DispatchInput struct {
	Code       string
	BusID      int64
	EmployeeID int64
	Notes      string
	Lines      []DispatchLineInput
}

// ProductionInput consumes consumable inputs and produces a part batch.
type ProductionInput struct {
	Code       string
	EmployeeID int64
	OutputPart int64
	OutputQty  float64
	Notes      string
	Inputs     []DispatchLineInput
}

// PostReceipt posts a supplier receipt. Consumable lines blend into the
// weighted average; part lines open a batch at the resolved final unit cost.
func (s *Service) PostReceipt(ctx context.Context, input ReceiptInput) (Entry, []Line, error) {
	if err := validateHeader(input.Code, input.EmployeeID, len(input.Lines)); err != nil {
		return Entry{}, nil, err
	}
	if !input.CostMode.Valid() {
		return Entry{}, nil, fmt.Errorf("%w: unknown cost mode %q", shared.ErrValidation, input.CostMode)
	}
	if err := s.claimCode(ctx, input.Code); err != nil {
		return Entry{}, nil, err
	}
	var entry Entry
	var lines []Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		id, err := repo.InsertEntry(ctx, Entry{
			Kind:       KindReceipt,
			Code:       input.Code,
			SupplierID: input.SupplierID,
			EmployeeID: input.EmployeeID,
			CostMode:   input.CostMode,
			AppliesTax: input.AppliesTax,
			Notes:      input.Notes,
		})
		if err != nil {
			return err
		}
		entry = Entry{ID: id, Kind: KindReceipt, Code: input.Code, SupplierID: input.SupplierID, EmployeeID: input.EmployeeID, CostMode: input.CostMode, AppliesTax: input.AppliesTax}
		for _, req := range input.Lines {
			if err := req.Item.Validate(); err != nil {
				return err
			}
			unitCost, err := inventory.FinalUnitCost(req.Qty, req.Cost, input.CostMode, input.AppliesTax)
			if err != nil {
				return err
			}
			line := Line{EntryID: id, ItemKind: req.Item.Kind, ItemID: req.Item.ID, Qty: req.Qty, Cost: req.Cost, FinalUnitCost: unitCost}
			if req.Item.Kind == shared.ItemConsumable {
				_, err = inventory.ReceiveConsumableTx(ctx, repo, inventory.ReceiveInput{
					ConsumableID: req.Item.ID,
					Qty:          req.Qty,
					RefModule:    refModule,
					ActorID:      input.EmployeeID,
					Note:         input.Code,
				}, unitCost)
			} else {
				line.BatchID, err = inventory.CreateBatchTx(ctx, repo, inventory.CreateBatchInput{
					PartID:    req.Item.ID,
					Qty:       req.Qty,
					UnitCost:  unitCost,
					RefModule: refModule,
					ActorID:   input.EmployeeID,
					Note:      input.Code,
				})
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
		s.releaseCode(ctx, input.Code)
		return Entry{}, nil, err
	}
	s.recordAudit(ctx, input.EmployeeID, "entries:receipt", entry.ID, map[string]any{"code": input.Code, "lines": len(lines)})
	return entry, lines, nil
}

// PostDispatch posts an outbound issue. Consumables leave at the current
// average cost; part lines deplete batches oldest first, splitting across
// batches as needed.
func (s *Service) PostDispatch(ctx context.Context, input DispatchInput) (Entry, []Line, error) {
	if err := validateHeader(input.Code, input.EmployeeID, len(input.Lines)); err != nil {
		return Entry{}, nil, err
	}
	if err := s.claimCode(ctx, input.Code); err != nil {
		return Entry{}, nil, err
	}
	var entry Entry
	var lines []Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		id, err := repo.InsertEntry(ctx, Entry{
			Kind:       KindDispatch,
			Code:       input.Code,
			BusID:      input.BusID,
			EmployeeID: input.EmployeeID,
			CostMode:   inventory.CostModeUnit,
			Notes:      input.Notes,
		})
		if err != nil {
			return err
		}
		entry = Entry{ID: id, Kind: KindDispatch, Code: input.Code, BusID: input.BusID, EmployeeID: input.EmployeeID}
		for _, req := range input.Lines {
			if err := req.Item.Validate(); err != nil {
				return err
			}
			line := Line{EntryID: id, ItemKind: req.Item.Kind, ItemID: req.Item.ID, Qty: req.Qty}
			if req.Item.Kind == shared.ItemConsumable {
				balance, err := inventory.DispatchConsumableTx(ctx, repo, inventory.DispatchInput{
					ConsumableID: req.Item.ID,
					Qty:          req.Qty,
					RefModule:    refModule,
					ActorID:      input.EmployeeID,
					Note:         input.Code,
				})
				if err != nil {
					return err
				}
				line.FinalUnitCost = balance.AvgCost
			} else {
				takes, err := inventory.DepleteBatchesTx(ctx, repo, inventory.DepleteInput{
					PartID:    req.Item.ID,
					Qty:       req.Qty,
					RefModule: refModule,
					ActorID:   input.EmployeeID,
					Note:      input.Code,
				})
				if err != nil {
					return err
				}
				line.FinalUnitCost = blendedCost(takes, req.Qty)
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
		s.releaseCode(ctx, input.Code)
		return Entry{}, nil, err
	}
	s.recordAudit(ctx, input.EmployeeID, "entries:dispatch", entry.ID, map[string]any{"code": input.Code, "lines": len(lines)})
	return entry, lines, nil
}

// PostProduction consumes the consumable inputs and opens one output batch
// whose unit cost spreads the consumed cost over the produced quantity.
func (s *Service) PostProduction(ctx context.Context, input ProductionInput) (Entry, int64, error) {
	if err := validateHeader(input.Code, input.EmployeeID, len(input.Inputs)); err != nil {
		return Entry{}, 0, err
	}
	if input.OutputPart <= 0 {
		return Entry{}, 0, fmt.Errorf("%w: output part required", shared.ErrValidation)
	}
	if input.OutputQty <= 0 {
		return Entry{}, 0, fmt.Errorf("%w: output quantity must be positive", shared.ErrValidation)
	}
	if err := s.claimCode(ctx, input.Code); err != nil {
		return Entry{}, 0, err
	}
	var entry Entry
	var batchID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		id, err := repo.InsertEntry(ctx, Entry{
			Kind:       KindProduction,
			Code:       input.Code,
			EmployeeID: input.EmployeeID,
			CostMode:   inventory.CostModeUnit,
			Notes:      input.Notes,
		})
		if err != nil {
			return err
		}
		entry = Entry{ID: id, Kind: KindProduction, Code: input.Code, EmployeeID: input.EmployeeID}
		var consumedCost float64
		for _, req := range input.Inputs {
			if req.Item.Kind != shared.ItemConsumable {
				return fmt.Errorf("%w: production inputs must be consumables", shared.ErrValidation)
			}
			balance, err := inventory.DispatchConsumableTx(ctx, repo, inventory.DispatchInput{
				ConsumableID: req.Item.ID,
				Qty:          req.Qty,
				RefModule:    refModule,
				ActorID:      input.EmployeeID,
				Note:         input.Code,
			})
			if err != nil {
				return err
			}
			consumedCost += req.Qty * balance.AvgCost
			if _, err := repo.InsertLine(ctx, Line{
				EntryID: id, ItemKind: req.Item.Kind, ItemID: req.Item.ID,
				Qty: req.Qty, FinalUnitCost: balance.AvgCost,
			}); err != nil {
				return err
			}
		}
		unitCost := consumedCost / input.OutputQty
		batchID, err = inventory.CreateBatchTx(ctx, repo, inventory.CreateBatchInput{
			PartID:    input.OutputPart,
			Qty:       input.OutputQty,
			UnitCost:  unitCost,
			RefModule: refModule,
			ActorID:   input.EmployeeID,
			Note:      input.Code,
		})
		if err != nil {
			return err
		}
		_, err = repo.InsertLine(ctx, Line{
			EntryID: id, ItemKind: shared.ItemPart, ItemID: input.OutputPart,
			Qty: input.OutputQty, FinalUnitCost: unitCost, BatchID: batchID,
		})
		return err
	})
	if err != nil {
		s.releaseCode(ctx, input.Code)
		return Entry{}, 0, err
	}
	s.recordAudit(ctx, input.EmployeeID, "entries:production", entry.ID, map[string]any{
		"code": input.Code, "output_part": input.OutputPart, "batch_id": batchID,
	})
	return entry, batchID, nil
}

// Get loads an entry with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Entry, []Line, error) {
	return s.repo.Get(ctx, id)
}

// List returns recent entries.
func (s *Service) List(ctx context.Context, kind Kind, limit int) ([]Entry, error) {
	if kind != "" && kind != KindReceipt && kind != KindDispatch && kind != KindProduction {
		return nil, fmt.Errorf("%w: unknown entry kind %q", shared.ErrValidation, kind)
	}
	return s.repo.List(ctx, kind, limit)
}

func (s *Service) claimCode(ctx context.Context, code string) error {
	if s.idem == nil {
		return nil
	}
	return s.idem.CheckAndInsert(ctx, code, refModule)
}

func (s *Service) releaseCode(ctx context.Context, code string) {
	if s.idem == nil {
		return
	}
	_ = s.idem.Delete(ctx, code)
}

// blendedCost averages the per-batch snapshot costs of a FIFO depletion,
// weighted by the quantity taken from each batch.
func blendedCost(takes []inventory.BatchTake, qty float64) float64 {
	if qty <= 0 {
		return 0
	}
	var total float64
	for _, take := range takes {
		total += take.Qty * take.UnitCost
	}
	return total / qty
}

func validateHeader(code string, employeeID int64, lineCount int) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: document code required", shared.ErrValidation)
	}
	if employeeID <= 0 {
		return fmt.Errorf("%w: employee id required", shared.ErrValidation)
	}
	if lineCount == 0 {
		return fmt.Errorf("%w: at least one line required", shared.ErrValidation)
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
		Entity:   "entry",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
