package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-erp/almacen-erp/internal/platform/db"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Repository persists the inventory ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxStore exposes the ledger operations available inside one transaction.
// Sibling modules embed it in their own transactional repositories so a
// compound operation (adjustment, loan, count, receipt) runs the ledger
// writes in the same transaction as its own rows.
type TxStore interface {
	GetConsumableForUpdate(ctx context.Context, id int64) (Consumable, error)
	UpdateConsumable(ctx context.Context, id int64, stock, avgCost float64) error
	GetPart(ctx context.Context, id int64) (Part, error)
	GetBatchForUpdate(ctx context.Context, id int64) (Batch, error)
	ListOpenBatchesForUpdate(ctx context.Context, partID int64) ([]Batch, error)
	NewestBatchForUpdate(ctx context.Context, partID int64) (Batch, error)
	InsertBatch(ctx context.Context, batch Batch) (int64, error)
	UpdateBatchRemaining(ctx context.Context, id int64, remaining float64) error
	UpdateBatchCost(ctx context.Context, id int64, unitCost float64) error
	DeleteBatch(ctx context.Context, id int64) error
	SumBatchRemaining(ctx context.Context, partID int64) (float64, error)
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
}

type txStore struct {
	tx pgx.Tx
}

// MovementObserver counts posted movements, typically Prometheus backed.
type MovementObserver interface {
	CountMovement(itemKind, direction string)
}

var movementObserver MovementObserver

// SetMovementObserver installs the process-wide movement counter. Call once
// during startup, before any transaction runs.
func SetMovementObserver(observer MovementObserver) {
	movementObserver = observer
}

// StoreWithTx wraps an open transaction with the ledger operations.
func StoreWithTx(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

// ListMovements returns the movement history (kardex) for an item.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_kind, item_id, COALESCE(batch_id, 0), qty_in, qty_out, unit_cost, ref_module, COALESCE(ref_id::text, ''), COALESCE(actor_id, 0), note, posted_at
FROM stock_movements
WHERE item_kind=$1 AND item_id=$2 AND posted_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY posted_at ASC, id ASC
LIMIT $5`, string(filter.Kind), filter.ItemID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var kind string
		if err := rows.Scan(&m.ID, &kind, &m.ItemID, &m.BatchID, &m.QtyIn, &m.QtyOut, &m.UnitCost, &m.RefModule, &m.RefID, &m.ActorID, &m.Note, &m.PostedAt); err != nil {
			return nil, err
		}
		m.ItemKind = shared.ItemKind(kind)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

// ListBatches returns the open batches for a part, oldest first.
func (r *Repository) ListBatches(ctx context.Context, partID int64) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, part_id, remaining, unit_cost, COALESCE(entry_line_id, 0), created_at
FROM part_batches WHERE part_id=$1 AND remaining > 0 ORDER BY id ASC`, partID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

// PartStock returns the aggregate stock for a part outside a transaction.
// Mutating paths must use TxStore.SumBatchRemaining instead.
func (r *Repository) PartStock(ctx context.Context, partID int64) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(remaining), 0) FROM part_batches WHERE part_id=$1`, partID).Scan(&total)
	return total, err
}

// GetConsumable reads a consumable outside a transaction.
func (r *Repository) GetConsumable(ctx context.Context, id int64) (Consumable, error) {
	var c Consumable
	err := r.pool.QueryRow(ctx, `SELECT id, name, unit, stock, avg_cost, min_stock, updated_at FROM consumables WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Unit, &c.Stock, &c.AvgCost, &c.MinStock, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Consumable{}, shared.ErrNotFound
		}
		return Consumable{}, err
	}
	return c, nil
}

func (s *txStore) GetConsumableForUpdate(ctx context.Context, id int64) (Consumable, error) {
	var c Consumable
	err := s.tx.QueryRow(ctx, `SELECT id, name, unit, stock, avg_cost, min_stock, updated_at FROM consumables WHERE id=$1 FOR UPDATE`, id).
		Scan(&c.ID, &c.Name, &c.Unit, &c.Stock, &c.AvgCost, &c.MinStock, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Consumable{}, shared.ErrNotFound
		}
		return Consumable{}, err
	}
	return c, nil
}

func (s *txStore) UpdateConsumable(ctx context.Context, id int64, stock, avgCost float64) error {
	tag, err := s.tx.Exec(ctx, `UPDATE consumables SET stock=$2, avg_cost=$3, updated_at=NOW() WHERE id=$1`, id, stock, avgCost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *txStore) GetPart(ctx context.Context, id int64) (Part, error) {
	var p Part
	err := s.tx.QueryRow(ctx, `SELECT id, name, sku, min_stock, max_stock FROM parts WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.SKU, &p.MinStock, &p.MaxStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Part{}, shared.ErrNotFound
		}
		return Part{}, err
	}
	return p, nil
}

func (s *txStore) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	var b Batch
	err := s.tx.QueryRow(ctx, `SELECT id, part_id, remaining, unit_cost, COALESCE(entry_line_id, 0), created_at FROM part_batches WHERE id=$1 FOR UPDATE`, id).
		Scan(&b.ID, &b.PartID, &b.Remaining, &b.UnitCost, &b.EntryLineID, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, shared.ErrNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func (s *txStore) ListOpenBatchesForUpdate(ctx context.Context, partID int64) ([]Batch, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, part_id, remaining, unit_cost, COALESCE(entry_line_id, 0), created_at
FROM part_batches WHERE part_id=$1 AND remaining > 0 ORDER BY id ASC FOR UPDATE`, partID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

func (s *txStore) NewestBatchForUpdate(ctx context.Context, partID int64) (Batch, error) {
	var b Batch
	err := s.tx.QueryRow(ctx, `SELECT id, part_id, remaining, unit_cost, COALESCE(entry_line_id, 0), created_at
FROM part_batches WHERE part_id=$1 ORDER BY id DESC LIMIT 1 FOR UPDATE`, partID).
		Scan(&b.ID, &b.PartID, &b.Remaining, &b.UnitCost, &b.EntryLineID, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, shared.ErrNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func (s *txStore) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO part_batches (part_id, remaining, unit_cost, entry_line_id, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id`, batch.PartID, batch.Remaining, batch.UnitCost, nullInt(batch.EntryLineID)).Scan(&id)
	return id, err
}

func (s *txStore) UpdateBatchRemaining(ctx context.Context, id int64, remaining float64) error {
	tag, err := s.tx.Exec(ctx, `UPDATE part_batches SET remaining=$2 WHERE id=$1`, id, remaining)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *txStore) UpdateBatchCost(ctx context.Context, id int64, unitCost float64) error {
	tag, err := s.tx.Exec(ctx, `UPDATE part_batches SET unit_cost=$2 WHERE id=$1`, id, unitCost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *txStore) DeleteBatch(ctx context.Context, id int64) error {
	tag, err := s.tx.Exec(ctx, `DELETE FROM part_batches WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *txStore) SumBatchRemaining(ctx context.Context, partID int64) (float64, error) {
	var total float64
	err := s.tx.QueryRow(ctx, `SELECT COALESCE(SUM(remaining), 0) FROM part_batches WHERE part_id=$1`, partID).Scan(&total)
	return total, err
}

func (s *txStore) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_movements (item_kind, item_id, batch_id, qty_in, qty_out, unit_cost, ref_module, ref_id, actor_id, note, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		string(m.ItemKind), m.ItemID, nullInt(m.BatchID), m.QtyIn, m.QtyOut, m.UnitCost, m.RefModule, nullUUID(m.RefID), nullInt(m.ActorID), m.Note, m.PostedAt).Scan(&id)
	if err == nil && movementObserver != nil {
		direction := "in"
		if m.QtyOut > 0 {
			direction = "out"
		}
		movementObserver.CountMovement(string(m.ItemKind), direction)
	}
	return id, err
}

func scanBatches(rows pgx.Rows) ([]Batch, error) {
	batches := []Batch{}
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.PartID, &b.Remaining, &b.UnitCost, &b.EntryLineID, &b.CreatedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullUUID(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
