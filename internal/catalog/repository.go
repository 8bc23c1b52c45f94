package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// PartSummary is a part with its live aggregate stock, always computed from
// batch remainders.
type PartSummary struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	SKU      string  `json:"sku"`
	MinStock float64 `json:"min_stock"`
	MaxStock float64 `json:"max_stock"`
	Stock    float64 `json:"stock"`
}

// ConsumableSummary is a consumable with its live figures.
type ConsumableSummary struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Unit     string  `json:"unit"`
	Stock    float64 `json:"stock"`
	AvgCost  float64 `json:"avg_cost"`
	MinStock float64 `json:"min_stock"`
}

// Filter narrows catalog listings.
type Filter struct {
	Search       string
	LowStockOnly bool
	Page         int
	PerPage      int
}

// Repository reads the item catalog from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const partStockExpr = `COALESCE((SELECT SUM(b.remaining) FROM part_batches b WHERE b.part_id = p.id), 0)`

// ListParts returns parts with their aggregate stock.
func (r *Repository) ListParts(ctx context.Context, filter Filter) ([]PartSummary, shared.Pagination, error) {
	where, args := partFilter(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM parts p`+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, p.PerPage, p.Offset())
	query := fmt.Sprintf(`SELECT p.id, p.name, p.sku, p.min_stock, p.max_stock, %s AS stock FROM parts p%s ORDER BY p.name ASC LIMIT $%d OFFSET $%d`,
		partStockExpr, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	result := []PartSummary{}
	for rows.Next() {
		var part PartSummary
		if err := rows.Scan(&part.ID, &part.Name, &part.SKU, &part.MinStock, &part.MaxStock, &part.Stock); err != nil {
			return nil, shared.Pagination{}, err
		}
		result = append(result, part)
	}
	return result, p, rows.Err()
}

// ListConsumables returns consumables.
func (r *Repository) ListConsumables(ctx context.Context, filter Filter) ([]ConsumableSummary, shared.Pagination, error) {
	where, args := consumableFilter(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM consumables c`+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, p.PerPage, p.Offset())
	query := fmt.Sprintf(`SELECT c.id, c.name, c.unit, c.stock, c.avg_cost, c.min_stock FROM consumables c%s ORDER BY c.name ASC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	result := []ConsumableSummary{}
	for rows.Next() {
		var consumable ConsumableSummary
		if err := rows.Scan(&consumable.ID, &consumable.Name, &consumable.Unit, &consumable.Stock, &consumable.AvgCost, &consumable.MinStock); err != nil {
			return nil, shared.Pagination{}, err
		}
		result = append(result, consumable)
	}
	return result, p, rows.Err()
}

// GetPart loads one part with its aggregate stock.
func (r *Repository) GetPart(ctx context.Context, id int64) (PartSummary, error) {
	var part PartSummary
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT p.id, p.name, p.sku, p.min_stock, p.max_stock, %s AS stock FROM parts p WHERE p.id=$1`, partStockExpr), id).
		Scan(&part.ID, &part.Name, &part.SKU, &part.MinStock, &part.MaxStock, &part.Stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PartSummary{}, shared.ErrNotFound
		}
		return PartSummary{}, err
	}
	return part, nil
}

// GetConsumable loads one consumable.
func (r *Repository) GetConsumable(ctx context.Context, id int64) (ConsumableSummary, error) {
	var consumable ConsumableSummary
	err := r.pool.QueryRow(ctx, `SELECT c.id, c.name, c.unit, c.stock, c.avg_cost, c.min_stock FROM consumables c WHERE c.id=$1`, id).
		Scan(&consumable.ID, &consumable.Name, &consumable.Unit, &consumable.Stock, &consumable.AvgCost, &consumable.MinStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConsumableSummary{}, shared.ErrNotFound
		}
		return ConsumableSummary{}, err
	}
	return consumable, nil
}

// LowStockParts returns every part whose aggregate stock is below its
// minimum threshold.
func (r *Repository) LowStockParts(ctx context.Context) ([]PartSummary, error) {
	parts, _, err := r.ListParts(ctx, Filter{LowStockOnly: true, PerPage: 1000})
	return parts, err
}

// LowStockConsumables returns every consumable below its minimum threshold.
func (r *Repository) LowStockConsumables(ctx context.Context) ([]ConsumableSummary, error) {
	consumables, _, err := r.ListConsumables(ctx, Filter{LowStockOnly: true, PerPage: 1000})
	return consumables, err
}

func partFilter(filter Filter) (string, []any) {
	where := ""
	args := []any{}
	and := func(cond string) {
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		and(fmt.Sprintf(`(p.name ILIKE $%d OR p.sku ILIKE $%d)`, len(args), len(args)))
	}
	if filter.LowStockOnly {
		and(`p.min_stock > 0 AND ` + partStockExpr + ` < p.min_stock`)
	}
	return where, args
}

func consumableFilter(filter Filter) (string, []any) {
	where := ""
	args := []any{}
	and := func(cond string) {
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		and(fmt.Sprintf(`c.name ILIKE $%d`, len(args)))
	}
	if filter.LowStockOnly {
		and(`c.min_stock > 0 AND c.stock < c.min_stock`)
	}
	return where, args
}
