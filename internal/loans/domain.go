package loans

import (
	"time"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Status enumerates the loan lifecycle.
type Status string

const (
	// StatusActive marks a loan with outstanding quantity on at least one line.
	StatusActive Status = "ACTIVO"
	// StatusClosed marks a loan whose every line is fully reconciled.
	StatusClosed Status = "CERRADO"
)

// DispositionGood is the only return disposition that restores stock. Any
// other disposition counts toward reconciliation but the quantity stays
// consumed.
const DispositionGood = "BUENO"

// Loan is the header of a temporary stock removal to a person.
type Loan struct {
	ID         int64
	Solicitant string
	EmployeeID int64
	Notes      string
	Status     Status
	CreatedAt  time.Time
	ClosedAt   time.Time
}

// Line is one loaned item. Returned accumulates across return events and
// never exceeds Qty. BatchID records the single batch a part line was taken
// from.
type Line struct {
	ID       int64
	LoanID   int64
	ItemKind shared.ItemKind
	ItemID   int64
	Qty      float64
	Returned float64
	BatchID  int64
}

// Return is one registered return event against a line.
type Return struct {
	ID          int64
	LineID      int64
	Qty         float64
	Disposition string
	CreatedAt   time.Time
}

// Outstanding reports the quantity still out on the line.
func (l Line) Outstanding() float64 {
	return l.Qty - l.Returned
}
