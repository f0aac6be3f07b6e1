package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docavailable/admin-api/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
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

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func whereFor(f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(u.first_name ILIKE $%[1]d OR u.last_name ILIKE $%[1]d OR u.email ILIKE $%[1]d OR s.plan_name ILIKE $%[1]d)", n))
	}
	switch f.Status {
	case StatusActive:
		conds = append(conds, "s.is_active = true")
	case StatusInactive:
		conds = append(conds, "s.is_active = false")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const fromClause = ` FROM subscriptions s LEFT JOIN users u ON s.user_id = u.id`

func (r *repoPG) Count(ctx context.Context, f Filter) (int, error) {
	where, args := whereFor(f)
	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+fromClause+where, args...).Scan(&total)
	return total, err
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]Subscription, error) {
	where, args := whereFor(f)
	args = append(args, limit, offset)
	q := fmt.Sprintf(`SELECT s.id, s.user_id, s.plan_id, s.plan_name, s.plan_price::text, s.plan_currency,
			s.status, s.is_active, s.start_date, s.end_date,
			s.text_sessions_remaining, s.appointments_remaining, s.voice_calls_remaining, s.video_calls_remaining,
			s.created_at, COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), COALESCE(u.email, '')
		%s%s
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $%d OFFSET $%d`, fromClause, where, len(args)-1, len(args))

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.PlanID, &s.PlanName, &s.PlanPrice, &s.PlanCurrency,
			&s.Status, &s.IsActive, &s.StartDate, &s.EndDate,
			&s.TextSessionsRemaining, &s.AppointmentsRemaining, &s.VoiceCallsRemaining, &s.VideoCallsRemaining,
			&s.CreatedAt, &s.User.FirstName, &s.User.LastName, &s.User.Email,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// updateSQL builds the counter UPDATE. Column names come only from
// CounterFields; values are always bound.
func updateSQL(patch CounterPatch) (string, []interface{}) {
	var sets []string
	var args []interface{}
	for _, f := range CounterFields {
		v, ok := patch[f]
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", f, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	return fmt.Sprintf(`UPDATE subscriptions SET %s WHERE id = $%d
		RETURNING id, text_sessions_remaining, voice_calls_remaining, video_calls_remaining, appointments_remaining, plan_name`,
		strings.Join(sets, ", "), len(args)+1), args
}

func (r *repoPG) UpdateCounters(ctx context.Context, id int64, patch CounterPatch) (*Counters, error) {
	q, args := updateSQL(patch)
	args = append(args, id)

	var c Counters
	err := r.conn(ctx).QueryRow(ctx, q, args...).Scan(
		&c.ID, &c.TextSessionsRemaining, &c.VoiceCallsRemaining, &c.VideoCallsRemaining, &c.AppointmentsRemaining, &c.PlanName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) SetActive(ctx context.Context, id int64, active bool) (*ActiveState, error) {
	var s ActiveState
	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE subscriptions SET is_active = $1, updated_at = NOW() WHERE id = $2 RETURNING id, is_active`,
		active, id,
	).Scan(&s.ID, &s.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
