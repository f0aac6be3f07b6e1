package admin

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docavailable/admin-api/internal/platform/db"
)

type identityRepoPG struct {
	pool *pgxpool.Pool
}

func NewIdentityRepo(pool *pgxpool.Pool) IdentityRepository {
	return &identityRepoPG{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *identityRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *identityRepoPG) AdminEmail(ctx context.Context, adminID int64) (string, error) {
	var email string
	err := r.conn(ctx).QueryRow(ctx, `SELECT email FROM admins WHERE id = $1`, adminID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return email, err
}

func (r *identityRepoPG) UserIDByEmail(ctx context.Context, email string) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id FROM users WHERE LOWER(email) = LOWER($1) ORDER BY id LIMIT 1`, email,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

func (r *identityRepoPG) ListActive(ctx context.Context) ([]Admin, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, email, role, is_active FROM admins WHERE is_active = true ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Admin
	for rows.Next() {
		var a Admin
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.IsActive); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
