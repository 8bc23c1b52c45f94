package entries

import (
	"time"

	"github.com/almacen-erp/almacen-erp/internal/inventory"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Kind enumerates the entry document types.
type Kind string

const (
	// KindReceipt is an inbound supplier receipt.
	KindReceipt Kind = "RECEPCION"
	// KindDispatch is an outbound issue to a bus.
	KindDispatch Kind = "SALIDA"
	// KindProduction consumes consumables and produces a part batch.
	KindProduction Kind = "PRODUCCION"
)

// Entry is the master document of a stock movement event.
type Entry struct {
	ID         int64
	Kind       Kind
	Code       string
	SupplierID int64
	BusID      int64
	EmployeeID int64
	CostMode   inventory.CostMode
	AppliesTax bool
	Notes      string
	CreatedAt  time.Time
}

// Line is one item on an entry. FinalUnitCost is the resolved per-unit cost
// after cost-mode division and IVA; for dispatch lines it is the snapshot
// cost the stock left at. BatchID links receipt part lines to the batch they
// opened.
type Line struct {
	ID            int64
	EntryID       int64
	ItemKind      shared.ItemKind
	ItemID        int64
	Qty           float64
	Cost          float64
	FinalUnitCost float64
	BatchID       int64
}
