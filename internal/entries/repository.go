package entries

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-erp/almacen-erp/internal/inventory"
	"github.com/almacen-erp/almacen-erp/internal/platform/db"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Repository persists entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository groups entry rows with the ledger operations.
type TxRepository interface {
	inventory.TxStore
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
}

type txRepository struct {
	inventory.TxStore
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("entries repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxStore: inventory.StoreWithTx(tx), tx: tx})
	})
}

// Get loads an entry with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Entry, []Line, error) {
	var entry Entry
	var kind, costMode string
	err := r.pool.QueryRow(ctx, `SELECT id, kind, code, COALESCE(supplier_id, 0), COALESCE(bus_id, 0), employee_id, cost_mode, applies_tax, notes, created_at
FROM entries WHERE id=$1`, id).
		Scan(&entry.ID, &kind, &entry.Code, &entry.SupplierID, &entry.BusID, &entry.EmployeeID, &costMode, &entry.AppliesTax, &entry.Notes, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, nil, shared.ErrNotFound
		}
		return Entry{}, nil, err
	}
	entry.Kind = Kind(kind)
	entry.CostMode = inventory.CostMode(costMode)
	rows, err := r.pool.Query(ctx, `SELECT id, entry_id, item_kind, item_id, qty, cost, final_unit_cost, COALESCE(batch_id, 0)
FROM entry_lines WHERE entry_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Entry{}, nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var line Line
		var itemKind string
		if err := rows.Scan(&line.ID, &line.EntryID, &itemKind, &line.ItemID, &line.Qty, &line.Cost, &line.FinalUnitCost, &line.BatchID); err != nil {
			return Entry{}, nil, err
		}
		line.ItemKind = shared.ItemKind(itemKind)
		lines = append(lines, line)
	}
	return entry, lines, rows.Err()
}

// List returns recent entries of a kind, all kinds when empty.
func (r *Repository) List(ctx context.Context, kind Kind, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, kind, code, COALESCE(supplier_id, 0), COALESCE(bus_id, 0), employee_id, cost_mode, applies_tax, notes, created_at FROM entries`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind=$1`
		args = append(args, string(kind))
	}
	args = append(args, limit)
	if kind != "" {
		query += ` ORDER BY id DESC LIMIT $2`
	} else {
		query += ` ORDER BY id DESC LIMIT $1`
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Entry{}
	for rows.Next() {
		var entry Entry
		var entryKind, costMode string
		if err := rows.Scan(&entry.ID, &entryKind, &entry.Code, &entry.SupplierID, &entry.BusID, &entry.EmployeeID, &costMode, &entry.AppliesTax, &entry.Notes, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Kind = Kind(entryKind)
		entry.CostMode = inventory.CostMode(costMode)
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO entries (kind, code, supplier_id, bus_id, employee_id, cost_mode, applies_tax, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		string(entry.Kind), entry.Code, nullInt(entry.SupplierID), nullInt(entry.BusID), entry.EmployeeID,
		string(entry.CostMode), entry.AppliesTax, entry.Notes).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO entry_lines (entry_id, item_kind, item_id, qty, cost, final_unit_cost, batch_id)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		line.EntryID, string(line.ItemKind), line.ItemID, line.Qty, line.Cost, line.FinalUnitCost, nullInt(line.BatchID)).Scan(&id)
	return id, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
