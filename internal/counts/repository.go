package counts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-erp/almacen-erp/internal/inventory"
	"github.com/almacen-erp/almacen-erp/internal/platform/db"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Repository persists counts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository groups count rows with the ledger operations so application
// is atomic.
type TxRepository interface {
	inventory.TxStore
	InsertCount(ctx context.Context, count Count) (int64, error)
	GetCountForUpdate(ctx context.Context, id int64) (Count, error)
	SetStatus(ctx context.Context, id int64, status Status, applied bool) error
	InsertLine(ctx context.Context, line Line) (int64, error)
	ListLines(ctx context.Context, countID int64) ([]Line, error)
	SetLineBatch(ctx context.Context, lineID, batchID int64) error
}

type txRepository struct {
	inventory.TxStore
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("counts repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxStore: inventory.StoreWithTx(tx), tx: tx})
	})
}

// Get loads a count with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Count, []Line, error) {
	count, err := scanCount(r.pool.QueryRow(ctx, `SELECT id, employee_id, notes, status, created_at, COALESCE(applied_at, 'epoch'::timestamptz)
FROM counts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Count{}, nil, shared.ErrNotFound
		}
		return Count{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, count_id, item_kind, item_id, qty, unit_cost, COALESCE(batch_id, 0)
FROM count_lines WHERE count_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Count{}, nil, err
	}
	defer rows.Close()
	lines, err := scanLines(rows)
	if err != nil {
		return Count{}, nil, err
	}
	return count, lines, nil
}

// List returns recent counts.
func (r *Repository) List(ctx context.Context, limit int) ([]Count, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, employee_id, notes, status, created_at, COALESCE(applied_at, 'epoch'::timestamptz)
FROM counts ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Count{}
	for rows.Next() {
		count, err := scanCount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, count)
	}
	return result, rows.Err()
}

func (r *txRepository) InsertCount(ctx context.Context, count Count) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO counts (employee_id, notes, status, created_at)
VALUES ($1,$2,$3,NOW()) RETURNING id`, count.EmployeeID, count.Notes, string(count.Status)).Scan(&id)
	return id, err
}

func (r *txRepository) GetCountForUpdate(ctx context.Context, id int64) (Count, error) {
	count, err := scanCount(r.tx.QueryRow(ctx, `SELECT id, employee_id, notes, status, created_at, COALESCE(applied_at, 'epoch'::timestamptz)
FROM counts WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Count{}, shared.ErrNotFound
		}
		return Count{}, err
	}
	return count, nil
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status, applied bool) error {
	query := `UPDATE counts SET status=$2 WHERE id=$1`
	if applied {
		query = `UPDATE counts SET status=$2, applied_at=NOW() WHERE id=$1`
	}
	tag, err := r.tx.Exec(ctx, query, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO count_lines (count_id, item_kind, item_id, qty, unit_cost)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, line.CountID, string(line.ItemKind), line.ItemID, line.Qty, line.UnitCost).Scan(&id)
	return id, err
}

func (r *txRepository) ListLines(ctx context.Context, countID int64) ([]Line, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, count_id, item_kind, item_id, qty, unit_cost, COALESCE(batch_id, 0)
FROM count_lines WHERE count_id=$1 ORDER BY id ASC`, countID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

func (r *txRepository) SetLineBatch(ctx context.Context, lineID, batchID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE count_lines SET batch_id=$2 WHERE id=$1`, lineID, batchID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCount(row rowScanner) (Count, error) {
	var count Count
	var status string
	var appliedAt time.Time
	err := row.Scan(&count.ID, &count.EmployeeID, &count.Notes, &status, &count.CreatedAt, &appliedAt)
	if err != nil {
		return Count{}, err
	}
	count.Status = Status(status)
	if appliedAt.Year() > 1970 {
		count.AppliedAt = appliedAt
	}
	return count, nil
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	lines := []Line{}
	for rows.Next() {
		var line Line
		var kind string
		if err := rows.Scan(&line.ID, &line.CountID, &kind, &line.ItemID, &line.Qty, &line.UnitCost, &line.BatchID); err != nil {
			return nil, err
		}
		line.ItemKind = shared.ItemKind(kind)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
