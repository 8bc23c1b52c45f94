package counts

import (
	"time"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Status enumerates the count lifecycle. Application is one-way: once a
// count is APLICADO it can never be applied again.
type Status string

const (
	// StatusOpen marks a count still being captured.
	StatusOpen Status = "EN_PROCESO"
	// StatusCompleted marks a count whose capture is finished and that is
	// eligible for application.
	StatusCompleted Status = "COMPLETADO"
	// StatusApplied marks a count whose figures were written to the ledger.
	StatusApplied Status = "APLICADO"
)

// Count is a physical inventory snapshot.
type Count struct {
	ID         int64
	EmployeeID int64
	Notes      string
	Status     Status
	CreatedAt  time.Time
	AppliedAt  time.Time
}

// Line is one counted item. Applying a consumable line overwrites the live
// stock and average cost with the counted figures; applying a part line
// opens a fresh batch for the counted quantity.
type Line struct {
	ID       int64
	CountID  int64
	ItemKind shared.ItemKind
	ItemID   int64
	Qty      float64
	UnitCost float64
	BatchID  int64
}
