package loans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-erp/almacen-erp/internal/inventory"
	"github.com/almacen-erp/almacen-erp/internal/platform/db"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Repository persists loans in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository groups loan rows with the ledger operations so creating a
// loan and decrementing stock commit together.
type TxRepository interface {
	inventory.TxStore
	InsertLoan(ctx context.Context, loan Loan) (int64, error)
	GetLoanForUpdate(ctx context.Context, id int64) (Loan, error)
	CloseLoan(ctx context.Context, id int64) error
	InsertLine(ctx context.Context, line Line) (int64, error)
	GetLineForUpdate(ctx context.Context, id int64) (Line, error)
	SetLineReturned(ctx context.Context, id int64, returned float64) error
	ListLinesForUpdate(ctx context.Context, loanID int64) ([]Line, error)
	InsertReturn(ctx context.Context, ret Return) (int64, error)
}

type txRepository struct {
	inventory.TxStore
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("loans repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxStore: inventory.StoreWithTx(tx), tx: tx})
	})
}

// Get loads a loan with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Loan, []Line, error) {
	loan, err := scanLoan(r.pool.QueryRow(ctx, `SELECT id, solicitant, employee_id, notes, status, created_at, COALESCE(closed_at, 'epoch'::timestamptz)
FROM loans WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Loan{}, nil, shared.ErrNotFound
		}
		return Loan{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, loan_id, item_kind, item_id, qty, returned, COALESCE(batch_id, 0)
FROM loan_lines WHERE loan_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Loan{}, nil, err
	}
	defer rows.Close()
	lines, err := scanLines(rows)
	if err != nil {
		return Loan{}, nil, err
	}
	return loan, lines, nil
}

// List returns recent loans, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status Status, p shared.Pagination) ([]Loan, error) {
	query := `SELECT id, solicitant, employee_id, notes, status, created_at, COALESCE(closed_at, 'epoch'::timestamptz)
FROM loans`
	args := []any{}
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, string(status))
	}
	args = append(args, p.PerPage, p.Offset())
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Loan{}
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, loan)
	}
	return result, rows.Err()
}

// ListReturns returns the return events of a line, oldest first.
func (r *Repository) ListReturns(ctx context.Context, lineID int64) ([]Return, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, line_id, qty, disposition, created_at FROM loan_returns WHERE line_id=$1 ORDER BY id ASC`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Return{}
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.LineID, &ret.Qty, &ret.Disposition, &ret.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ret)
	}
	return result, rows.Err()
}

func (r *txRepository) InsertLoan(ctx context.Context, loan Loan) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO loans (solicitant, employee_id, notes, status, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id`, loan.Solicitant, loan.EmployeeID, loan.Notes, string(loan.Status)).Scan(&id)
	return id, err
}

func (r *txRepository) GetLoanForUpdate(ctx context.Context, id int64) (Loan, error) {
	loan, err := scanLoan(r.tx.QueryRow(ctx, `SELECT id, solicitant, employee_id, notes, status, created_at, COALESCE(closed_at, 'epoch'::timestamptz)
FROM loans WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Loan{}, shared.ErrNotFound
		}
		return Loan{}, err
	}
	return loan, nil
}

func (r *txRepository) CloseLoan(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE loans SET status=$2, closed_at=NOW() WHERE id=$1`, id, string(StatusClosed))
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
	err := r.tx.QueryRow(ctx, `INSERT INTO loan_lines (loan_id, item_kind, item_id, qty, returned, batch_id)
VALUES ($1,$2,$3,$4,0,$5) RETURNING id`, line.LoanID, string(line.ItemKind), line.ItemID, line.Qty, nullInt(line.BatchID)).Scan(&id)
	return id, err
}

func (r *txRepository) GetLineForUpdate(ctx context.Context, id int64) (Line, error) {
	var line Line
	var kind string
	err := r.tx.QueryRow(ctx, `SELECT id, loan_id, item_kind, item_id, qty, returned, COALESCE(batch_id, 0)
FROM loan_lines WHERE id=$1 FOR UPDATE`, id).
		Scan(&line.ID, &line.LoanID, &kind, &line.ItemID, &line.Qty, &line.Returned, &line.BatchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Line{}, shared.ErrNotFound
		}
		return Line{}, err
	}
	line.ItemKind = shared.ItemKind(kind)
	return line, nil
}

func (r *txRepository) SetLineReturned(ctx context.Context, id int64, returned float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE loan_lines SET returned=$2 WHERE id=$1`, id, returned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) ListLinesForUpdate(ctx context.Context, loanID int64) ([]Line, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, loan_id, item_kind, item_id, qty, returned, COALESCE(batch_id, 0)
FROM loan_lines WHERE loan_id=$1 ORDER BY id ASC FOR UPDATE`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

func (r *txRepository) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO loan_returns (line_id, qty, disposition, created_at)
VALUES ($1,$2,$3,NOW()) RETURNING id`, ret.LineID, ret.Qty, ret.Disposition).Scan(&id)
	return id, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (Loan, error) {
	var loan Loan
	var status string
	var closedAt time.Time
	err := row.Scan(&loan.ID, &loan.Solicitant, &loan.EmployeeID, &loan.Notes, &status, &loan.CreatedAt, &closedAt)
	if err != nil {
		return Loan{}, err
	}
	loan.Status = Status(status)
	if closedAt.Year() > 1970 {
		loan.ClosedAt = closedAt
	}
	return loan, nil
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	lines := []Line{}
	for rows.Next() {
		var line Line
		var kind string
		if err := rows.Scan(&line.ID, &line.LoanID, &kind, &line.ItemID, &line.Qty, &line.Returned, &line.BatchID); err != nil {
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
