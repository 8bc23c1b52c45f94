package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Repository persists and reads audit records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores one audit record.
func (r *Repository) Insert(ctx context.Context, log shared.AuditLog) error {
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		meta = []byte("{}")
	}
	at := log.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, at)
VALUES ($1,$2,$3,$4,$5,$6)`, log.ActorID, log.Action, log.Entity, log.EntityID, meta, at)
	return err
}

// Window returns one page of the timeline plus one lookahead row.
func (r *Repository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]shared.AuditLog, error) {
	query := `SELECT actor_id, action, entity, entity_id, meta, at FROM audit_logs`
	args := []any{}
	where := ""
	and := func(cond string) {
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}
	if filters.Entity != "" {
		args = append(args, filters.Entity)
		and("entity=$" + strconv.Itoa(len(args)))
	}
	if filters.Action != "" {
		args = append(args, filters.Action)
		and("action=$" + strconv.Itoa(len(args)))
	}
	if filters.ActorID > 0 {
		args = append(args, filters.ActorID)
		and("actor_id=$" + strconv.Itoa(len(args)))
	}
	if !filters.From.IsZero() {
		args = append(args, filters.From)
		and("at >= $" + strconv.Itoa(len(args)))
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To)
		and("at <= $" + strconv.Itoa(len(args)))
	}
	args = append(args, limit, offset)
	query += where + " ORDER BY at DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []shared.AuditLog{}
	for rows.Next() {
		var log shared.AuditLog
		var meta []byte
		if err := rows.Scan(&log.ActorID, &log.Action, &log.Entity, &log.EntityID, &meta, &log.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &log.Meta)
		}
		result = append(result, log)
	}
	return result, rows.Err()
}

