package fuel

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-erp/almacen-erp/internal/platform/db"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Repository persists tanks and fuel events in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the transactional surface of the fuel store.
type TxRepository interface {
	GetTankForUpdate(ctx context.Context, id int64) (Tank, error)
	UpdateTank(ctx context.Context, id int64, level, pricePerLiter float64) error
	InsertLoad(ctx context.Context, load Load) (int64, error)
	InsertRefill(ctx context.Context, refill Refill) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("fuel repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetTank loads a tank outside a transaction.
func (r *Repository) GetTank(ctx context.Context, id int64) (Tank, error) {
	var tank Tank
	err := r.pool.QueryRow(ctx, `SELECT id, name, capacity, level, price_per_liter, updated_at FROM fuel_tanks WHERE id=$1`, id).
		Scan(&tank.ID, &tank.Name, &tank.Capacity, &tank.Level, &tank.PricePerLiter, &tank.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tank{}, shared.ErrNotFound
		}
		return Tank{}, err
	}
	return tank, nil
}

// ListTanks returns every tank.
func (r *Repository) ListTanks(ctx context.Context) ([]Tank, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, capacity, level, price_per_liter, updated_at FROM fuel_tanks ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Tank{}
	for rows.Next() {
		var tank Tank
		if err := rows.Scan(&tank.ID, &tank.Name, &tank.Capacity, &tank.Level, &tank.PricePerLiter, &tank.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, tank)
	}
	return result, rows.Err()
}

// ListLoads returns recent loads for a tank.
func (r *Repository) ListLoads(ctx context.Context, tankID int64, limit int) ([]Load, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tank_id, bus_id, liters, price_at, odometer, employee_id, created_at
FROM fuel_loads WHERE tank_id=$1 ORDER BY id DESC LIMIT $2`, tankID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Load{}
	for rows.Next() {
		var load Load
		if err := rows.Scan(&load.ID, &load.TankID, &load.BusID, &load.Liters, &load.PriceAt, &load.Odometer, &load.EmployeeID, &load.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, load)
	}
	return result, rows.Err()
}

func (r *txRepository) GetTankForUpdate(ctx context.Context, id int64) (Tank, error) {
	var tank Tank
	err := r.tx.QueryRow(ctx, `SELECT id, name, capacity, level, price_per_liter, updated_at FROM fuel_tanks WHERE id=$1 FOR UPDATE`, id).
		Scan(&tank.ID, &tank.Name, &tank.Capacity, &tank.Level, &tank.PricePerLiter, &tank.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tank{}, shared.ErrNotFound
		}
		return Tank{}, err
	}
	return tank, nil
}

func (r *txRepository) UpdateTank(ctx context.Context, id int64, level, pricePerLiter float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE fuel_tanks SET level=$2, price_per_liter=$3, updated_at=NOW() WHERE id=$1`, id, level, pricePerLiter)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertLoad(ctx context.Context, load Load) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO fuel_loads (tank_id, bus_id, liters, price_at, odometer, employee_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
		load.TankID, load.BusID, load.Liters, load.PriceAt, load.Odometer, load.EmployeeID).Scan(&id)
	return id, err
}

func (r *txRepository) InsertRefill(ctx context.Context, refill Refill) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO fuel_refills (tank_id, liters, price_per_liter, employee_id, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id`,
		refill.TankID, refill.Liters, refill.PricePerLiter, refill.EmployeeID).Scan(&id)
	return id, err
}
