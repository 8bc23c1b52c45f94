package adjustments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-erp/almacen-erp/internal/inventory"
	"github.com/almacen-erp/almacen-erp/internal/platform/db"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Repository persists adjustments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository groups the adjustment rows and the ledger operations in one
// transaction, so posting and reverting are atomic across both.
type TxRepository interface {
	inventory.TxStore
	InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error)
	TouchAdjustment(ctx context.Context, id int64, adjType Type, reason string) error
	GetAdjustmentForUpdate(ctx context.Context, id int64) (Adjustment, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	ListLines(ctx context.Context, adjustmentID int64) ([]Line, error)
	DeleteLines(ctx context.Context, adjustmentID int64) error
}

type txRepository struct {
	inventory.TxStore
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("adjustments repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxStore: inventory.StoreWithTx(tx), tx: tx})
	})
}

// Get loads an adjustment with its lines outside a transaction.
func (r *Repository) Get(ctx context.Context, id int64) (Adjustment, []Line, error) {
	var adj Adjustment
	var adjType string
	err := r.pool.QueryRow(ctx, `SELECT id, adj_type, employee_id, reason, created_at, updated_at FROM adjustments WHERE id=$1`, id).
		Scan(&adj.ID, &adjType, &adj.EmployeeID, &adj.Reason, &adj.CreatedAt, &adj.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, nil, shared.ErrNotFound
		}
		return Adjustment{}, nil, err
	}
	adj.Type = Type(adjType)
	rows, err := r.pool.Query(ctx, `SELECT id, adjustment_id, item_kind, item_id, qty, unit_cost, cost_delta, COALESCE(batch_id, 0)
FROM adjustment_lines WHERE adjustment_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Adjustment{}, nil, err
	}
	defer rows.Close()
	lines, err := scanLines(rows)
	if err != nil {
		return Adjustment{}, nil, err
	}
	return adj, lines, nil
}

// List returns recent adjustments.
func (r *Repository) List(ctx context.Context, limit int) ([]Adjustment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, adj_type, employee_id, reason, created_at, updated_at FROM adjustments ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Adjustment{}
	for rows.Next() {
		var adj Adjustment
		var adjType string
		if err := rows.Scan(&adj.ID, &adjType, &adj.EmployeeID, &adj.Reason, &adj.CreatedAt, &adj.UpdatedAt); err != nil {
			return nil, err
		}
		adj.Type = Type(adjType)
		result = append(result, adj)
	}
	return result, rows.Err()
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO adjustments (adj_type, employee_id, reason, created_at, updated_at)
VALUES ($1,$2,$3,NOW(),NOW()) RETURNING id`, string(adj.Type), adj.EmployeeID, adj.Reason).Scan(&id)
	return id, err
}

func (r *txRepository) TouchAdjustment(ctx context.Context, id int64, adjType Type, reason string) error {
	tag, err := r.tx.Exec(ctx, `UPDATE adjustments SET adj_type=$2, reason=$3, updated_at=NOW() WHERE id=$1`, id, string(adjType), reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) GetAdjustmentForUpdate(ctx context.Context, id int64) (Adjustment, error) {
	var adj Adjustment
	var adjType string
	err := r.tx.QueryRow(ctx, `SELECT id, adj_type, employee_id, reason, created_at, updated_at FROM adjustments WHERE id=$1 FOR UPDATE`, id).
		Scan(&adj.ID, &adjType, &adj.EmployeeID, &adj.Reason, &adj.CreatedAt, &adj.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, shared.ErrNotFound
		}
		return Adjustment{}, err
	}
	adj.Type = Type(adjType)
	return adj, nil
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO adjustment_lines (adjustment_id, item_kind, item_id, qty, unit_cost, cost_delta, batch_id)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		line.AdjustmentID, string(line.ItemKind), line.ItemID, line.Qty, line.UnitCost, line.CostDelta, nullInt(line.BatchID)).Scan(&id)
	return id, err
}

func (r *txRepository) ListLines(ctx context.Context, adjustmentID int64) ([]Line, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, adjustment_id, item_kind, item_id, qty, unit_cost, cost_delta, COALESCE(batch_id, 0)
FROM adjustment_lines WHERE adjustment_id=$1 ORDER BY id ASC`, adjustmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

func (r *txRepository) DeleteLines(ctx context.Context, adjustmentID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM adjustment_lines WHERE adjustment_id=$1`, adjustmentID)
	return err
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	lines := []Line{}
	for rows.Next() {
		var line Line
		var kind string
		if err := rows.Scan(&line.ID, &line.AdjustmentID, &kind, &line.ItemID, &line.Qty, &line.UnitCost, &line.CostDelta, &line.BatchID); err != nil {
			return nil, err
		}
		line.ItemKind = shared.ItemKind(kind)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
