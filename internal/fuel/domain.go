package fuel

import "time"

// Tank is a fuel deposit with a mutable level, guarded by a row lock like
// every other mutable balance in the ledger.
type Tank struct {
	ID            int64
	Name          string
	Capacity      float64
	Level         float64
	PricePerLiter float64
	UpdatedAt     time.Time
}

// Load is one fuel dispatch from a tank into a bus.
type Load struct {
	ID         int64
	TankID     int64
	BusID      int64
	Liters     float64
	PriceAt    float64
	Odometer   float64
	EmployeeID int64
	CreatedAt  time.Time
}

// Refill is one supplier delivery into a tank.
type Refill struct {
	ID            int64
	TankID        int64
	Liters        float64
	PricePerLiter float64
	EmployeeID    int64
	CreatedAt     time.Time
}
