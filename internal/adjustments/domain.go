package adjustments

import (
	"time"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Type enumerates the manual adjustment kinds.
type Type string

const (
	// TypeEntrada adds stock: consumables blend into the average, parts get
	// a new batch.
	TypeEntrada Type = "ENTRADA"
	// TypeSalida removes stock from a consumable or a caller-chosen batch.
	TypeSalida Type = "SALIDA"
	// TypeRevalorizacion changes cost without touching quantity.
	TypeRevalorizacion Type = "REVALORIZACION"
)

// Valid reports whether the type is known.
func (t Type) Valid() bool {
	return t == TypeEntrada || t == TypeSalida || t == TypeRevalorizacion
}

// Adjustment is the master record of a manual stock correction.
type Adjustment struct {
	ID         int64
	Type       Type
	EmployeeID int64
	Reason     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Line is one applied detail of an adjustment. Qty is stored signed:
// positive for ENTRADA, negative for SALIDA, zero for REVALORIZACION.
// BatchID references the batch the line created (ENTRADA) or targeted
// (SALIDA, REVALORIZACION) for part lines.
type Line struct {
	ID           int64
	AdjustmentID int64
	ItemKind     shared.ItemKind
	ItemID       int64
	Qty          float64
	UnitCost     float64
	CostDelta    float64
	BatchID      int64
}
