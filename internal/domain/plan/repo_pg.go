package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/docavailable/admin-api/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const planCols = `id, name, description, price::text, currency, duration,
	text_sessions, voice_calls, video_calls, features, status, created_at, updated_at`

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	var price string
	var features []byte
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &price, &p.Currency, &p.Duration,
		&p.TextSessions, &p.VoiceCalls, &p.VideoCalls, &features, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	p.Price = d
	p.Features = features
	return &p, nil
}

func (r *repoPG) List(ctx context.Context) ([]Plan, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+planCols+` FROM plans ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, id int64, u *Update) (*Plan, error) {
	row := r.conn(ctx).QueryRow(ctx, `UPDATE plans
		SET name = $1, description = $2, price = $3::numeric, currency = $4, duration = $5,
			text_sessions = $6, voice_calls = $7, video_calls = $8, features = $9::jsonb, status = $10,
			updated_at = NOW()
		WHERE id = $11
		RETURNING `+planCols,
		u.Name, u.Description, u.Price.String(), u.Currency, u.Duration,
		u.TextSessions, u.VoiceCalls, u.VideoCalls, string(u.Features), u.Status,
		id,
	)
	p, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// CountActiveSubscriptions locks the plan row first so no subscription can
// attach to it between the check and a delete in the same transaction.
func (r *repoPG) CountActiveSubscriptions(ctx context.Context, planID int64) (int, error) {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `SELECT id FROM plans WHERE id = $1 FOR UPDATE`, planID); err != nil {
		return 0, err
	}
	var n int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE plan_id = $1 AND is_active = true`, planID,
	).Scan(&n)
	return n, err
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
