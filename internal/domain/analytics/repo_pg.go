package analytics

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
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

const since = `created_at >= CURRENT_DATE - make_interval(months => $1)`

const byMonth = `GROUP BY TO_CHAR(created_at, 'Mon YYYY'), EXTRACT(YEAR FROM created_at), EXTRACT(MONTH FROM created_at)
		ORDER BY EXTRACT(YEAR FROM created_at), EXTRACT(MONTH FROM created_at)`

func priceSum(cast bool) string {
	if cast {
		return `COALESCE(SUM(CAST(plan_price AS NUMERIC)), 0)::text`
	}
	return `COALESCE(SUM(plan_price), 0)::text`
}

func parseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return NewAmount(d), nil
}

func (r *repoPG) UserGrowth(ctx context.Context, months int) ([]UserGrowth, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT TO_CHAR(created_at, 'Mon YYYY'), COUNT(*),
			COUNT(CASE WHEN user_type = 'doctor' THEN 1 END),
			COUNT(CASE WHEN user_type = 'patient' THEN 1 END)
		FROM users
		WHERE `+since+`
		`+byMonth, months)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []UserGrowth{}
	for rows.Next() {
		var g UserGrowth
		if err := rows.Scan(&g.Month, &g.Users, &g.Doctors, &g.Patients); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *repoPG) Revenue(ctx context.Context, months int, cast bool) ([]RevenuePoint, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT TO_CHAR(created_at, 'Mon YYYY'), `+priceSum(cast)+`, COUNT(*)
		FROM subscriptions
		WHERE `+since+` AND is_active = true
		`+byMonth, months)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RevenuePoint{}
	for rows.Next() {
		var p RevenuePoint
		var revenue string
		if err := rows.Scan(&p.Month, &revenue, &p.Subscriptions); err != nil {
			return nil, err
		}
		if p.Revenue, err = parseAmount(revenue); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repoPG) AppointmentStats(ctx context.Context, months int) ([]AppointmentStat, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT COALESCE(appointment_type, 'Unknown'), COUNT(*) AS n
		FROM appointments
		WHERE `+since+`
		GROUP BY appointment_type
		ORDER BY n DESC`, months)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AppointmentStat{}
	for rows.Next() {
		var s AppointmentStat
		if err := rows.Scan(&s.Type, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repoPG) PaymentMethods(ctx context.Context, months int) ([]PaymentMethodStat, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT COALESCE(payment_method, 'Unknown'), COUNT(*) AS n, COALESCE(SUM(amount), 0)::text
		FROM payment_transactions
		WHERE `+since+`
		GROUP BY payment_method
		ORDER BY n DESC`, months)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []PaymentMethodStat{}
	for rows.Next() {
		var s PaymentMethodStat
		var amount string
		if err := rows.Scan(&s.Method, &s.Count, &amount); err != nil {
			return nil, err
		}
		if s.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repoPG) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := r.conn(ctx).QueryRow(ctx, `SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE created_at >= DATE_TRUNC('month', CURRENT_DATE)),
			(SELECT COUNT(*) FROM appointments),
			(SELECT COUNT(*) FROM appointments WHERE status = 'completed')`,
	).Scan(&c.TotalUsers, &c.NewUsers, &c.TotalAppointments, &c.CompletedAppointments)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) RevenueTotals(ctx context.Context, cast bool) (*RevenueTotals, error) {
	sum := priceSum(cast)
	var total, monthly string
	err := r.conn(ctx).QueryRow(ctx, `SELECT
			(SELECT `+sum+` FROM subscriptions WHERE is_active = true),
			(SELECT `+sum+` FROM subscriptions WHERE is_active = true AND created_at >= DATE_TRUNC('month', CURRENT_DATE))`,
	).Scan(&total, &monthly)
	if err != nil {
		return nil, err
	}
	t, err := parseAmount(total)
	if err != nil {
		return nil, err
	}
	m, err := parseAmount(monthly)
	if err != nil {
		return nil, err
	}
	return &RevenueTotals{Total: t, Monthly: m}, nil
}
