package inventory

import (
	"fmt"
	"time"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// IVARate is the tax rate applied to receipts that declare aplica_iva.
const IVARate = 0.16

// CostMode states how the cost figure of an inbound receipt is expressed.
type CostMode string

const (
	// CostModeUnit means the figure is already a per-unit subtotal.
	CostModeUnit CostMode = "unitario"
	// CostModeNet means the figure is the net total for the whole quantity.
	CostModeNet CostMode = "neto"
)

// Valid reports whether the mode is known.
func (m CostMode) Valid() bool {
	return m == CostModeUnit || m == CostModeNet
}

// Consumable is stock valued at a single moving weighted-average cost.
type Consumable struct {
	ID        int64
	Name      string
	Unit      string
	Stock     float64
	AvgCost   float64
	MinStock  float64
	UpdatedAt time.Time
}

// Part is a catalog entry whose stock lives entirely in its batches.
type Part struct {
	ID       int64
	Name     string
	SKU      string
	MinStock float64
	MaxStock float64
}

// Batch is a discrete received quantity of a part at a fixed unit cost,
// depleted oldest first. FIFO order is insertion order: ascending id.
type Batch struct {
	ID          int64
	PartID      int64
	Remaining   float64
	UnitCost    float64
	EntryLineID int64
	CreatedAt   time.Time
}

// Movement is the immutable audit row written for every stock mutation. The
// unit cost is snapshotted at posting time and never recomputed.
type Movement struct {
	ID        int64
	ItemKind  shared.ItemKind
	ItemID    int64
	BatchID   int64
	QtyIn     float64
	QtyOut    float64
	UnitCost  float64
	RefModule string
	RefID     string
	ActorID   int64
	Note      string
	PostedAt  time.Time
}

// BatchTake records how much was taken from one batch during a FIFO
// depletion.
type BatchTake struct {
	BatchID  int64
	Qty      float64
	UnitCost float64
}

// MovementFilter filters kardex listings.
type MovementFilter struct {
	Kind   shared.ItemKind
	ItemID int64
	From   time.Time
	To     time.Time
	Limit  int
}

// ConsumableBalance is the success payload of consumable mutations.
type ConsumableBalance struct {
	ConsumableID int64
	Stock        float64
	AvgCost      float64
}

// FinalUnitCost resolves the per-unit cost of an inbound receipt: the net
// figure is divided across the quantity first, then IVA is added on top of
// the subtotal when the receipt declares it.
func FinalUnitCost(qty, cost float64, mode CostMode, appliesTax bool) (float64, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if cost < 0 {
		return 0, fmt.Errorf("%w: cost must not be negative", shared.ErrValidation)
	}
	if !mode.Valid() {
		return 0, fmt.Errorf("%w: unknown cost mode %q", shared.ErrValidation, mode)
	}
	subtotal := cost
	if mode == CostModeNet {
		subtotal = cost / qty
	}
	if appliesTax {
		return subtotal + subtotal*IVARate, nil
	}
	return subtotal, nil
}

// WeightedAverage blends the existing average cost with an incoming receipt.
// A zero resulting quantity clamps the average to zero.
func WeightedAverage(oldQty, oldAvg, qty, unitCost float64) float64 {
	newQty := oldQty + qty
	if newQty <= 0 {
		return 0
	}
	return (oldQty*oldAvg + qty*unitCost) / newQty
}
