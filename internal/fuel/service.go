package fuel

import (
	"context"
	"fmt"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTank(ctx context.Context, id int64) (Tank, error)
	ListTanks(ctx context.Context) ([]Tank, error)
	ListLoads(ctx context.Context, tankID int64, limit int) ([]Load, error)
}

// Service manages tank levels with the same locking discipline as the stock
// ledger.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditRecorder
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// LoadInput describes one fuel dispatch into a bus.
type LoadInput struct {
	TankID     int64
	BusID      int64
	Liters     float64
	Odometer   float64
	EmployeeID int64
}

// RefillInput describes a supplier delivery into a tank.
type RefillInput struct {
	TankID        int64
	Liters        float64
	PricePerLiter float64
	EmployeeID    int64
}

// LoadFuel moves liters from a tank into a bus. The tank's price per liter
// is snapshotted on the load for costing.
func (s *Service) LoadFuel(ctx context.Context, input LoadInput) (Load, error) {
	if input.TankID <= 0 || input.BusID <= 0 {
		return Load{}, fmt.Errorf("%w: tank and bus ids required", shared.ErrValidation)
	}
	if input.Liters <= 0 {
		return Load{}, fmt.Errorf("%w: liters must be positive", shared.ErrValidation)
	}
	var load Load
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		tank, err := repo.GetTankForUpdate(ctx, input.TankID)
		if err != nil {
			return err
		}
		if input.Liters > tank.Level {
			return fmt.Errorf("%w: tank %d holds %.2f liters", shared.ErrInsufficientStock, tank.ID, tank.Level)
		}
		if err := repo.UpdateTank(ctx, tank.ID, tank.Level-input.Liters, tank.PricePerLiter); err != nil {
			return err
		}
		load = Load{
			TankID:     tank.ID,
			BusID:      input.BusID,
			Liters:     input.Liters,
			PriceAt:    tank.PricePerLiter,
			Odometer:   input.Odometer,
			EmployeeID: input.EmployeeID,
		}
		load.ID, err = repo.InsertLoad(ctx, load)
		return err
	})
	if err != nil {
		return Load{}, err
	}
	s.recordAudit(ctx, input.EmployeeID, "fuel:load", input.TankID, map[string]any{
		"bus_id": input.BusID, "liters": input.Liters,
	})
	return load, nil
}

// RefillTank adds liters to a tank and records the delivery price, which
// becomes the tank's current price per liter.
func (s *Service) RefillTank(ctx context.Context, input RefillInput) (Tank, error) {
	if input.TankID <= 0 {
		return Tank{}, fmt.Errorf("%w: tank id required", shared.ErrValidation)
	}
	if input.Liters <= 0 {
		return Tank{}, fmt.Errorf("%w: liters must be positive", shared.ErrValidation)
	}
	if input.PricePerLiter < 0 {
		return Tank{}, fmt.Errorf("%w: price per liter must not be negative", shared.ErrValidation)
	}
	var tank Tank
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		var err error
		tank, err = repo.GetTankForUpdate(ctx, input.TankID)
		if err != nil {
			return err
		}
		newLevel := tank.Level + input.Liters
		if tank.Capacity > 0 && newLevel > tank.Capacity {
			return fmt.Errorf("%w: refill exceeds tank capacity %.2f", shared.ErrValidation, tank.Capacity)
		}
		if err := repo.UpdateTank(ctx, tank.ID, newLevel, input.PricePerLiter); err != nil {
			return err
		}
		tank.Level = newLevel
		tank.PricePerLiter = input.PricePerLiter
		_, err = repo.InsertRefill(ctx, Refill{
			TankID:        tank.ID,
			Liters:        input.Liters,
			PricePerLiter: input.PricePerLiter,
			EmployeeID:    input.EmployeeID,
		})
		return err
	})
	if err != nil {
		return Tank{}, err
	}
	s.recordAudit(ctx, input.EmployeeID, "fuel:refill", input.TankID, map[string]any{
		"liters": input.Liters, "price_per_liter": input.PricePerLiter,
	})
	return tank, nil
}

// Tank loads one tank.
func (s *Service) Tank(ctx context.Context, id int64) (Tank, error) {
	if id <= 0 {
		return Tank{}, fmt.Errorf("%w: tank id required", shared.ErrValidation)
	}
	return s.repo.GetTank(ctx, id)
}

// Tanks lists every tank.
func (s *Service) Tanks(ctx context.Context) ([]Tank, error) {
	return s.repo.ListTanks(ctx)
}

// Loads lists recent loads for a tank.
func (s *Service) Loads(ctx context.Context, tankID int64, limit int) ([]Load, error) {
	if tankID <= 0 {
		return nil, fmt.Errorf("%w: tank id required", shared.ErrValidation)
	}
	return s.repo.ListLoads(ctx, tankID, limit)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "fuel_tank",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
