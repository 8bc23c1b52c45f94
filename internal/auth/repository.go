package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// PgRepository reads employees from PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// FindByEmail loads an employee by email.
func (r *PgRepository) FindByEmail(ctx context.Context, email string) (Employee, error) {
	var employee Employee
	err := r.pool.QueryRow(ctx, `SELECT id, name, email, role, password_hash, is_active FROM employees WHERE email=$1`, email).
		Scan(&employee.ID, &employee.Name, &employee.Email, &employee.Role, &employee.PasswordHash, &employee.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, shared.ErrNotFound
		}
		return Employee{}, err
	}
	return employee, nil
}
