package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// Amounts cross the driver as text so NUMERIC precision is preserved.
const requestCols = `wr.id, wr.doctor_id, wr.amount::text, wr.currency, wr.payment_method, wr.payment_details,
	wr.status, wr.paid_by, wr.paid_at, wr.created_at, wr.updated_at,
	COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), COALESCE(u.email, ''), u.phone_number`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	var amount string
	var details []byte
	err := row.Scan(
		&r.ID, &r.DoctorID, &amount, &r.Currency, &r.PaymentMethod, &details,
		&r.Status, &r.PaidBy, &r.PaidAt, &r.CreatedAt, &r.UpdatedAt,
		&r.Doctor.FirstName, &r.Doctor.LastName, &r.Doctor.Email, &r.Doctor.PhoneNumber,
	)
	if err != nil {
		return nil, err
	}
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if len(details) > 0 {
		r.PaymentDetails = details
	}
	return &r, nil
}

func statusClause(status string, args []interface{}) (string, []interface{}) {
	if status == "" || status == "all" {
		return "", args
	}
	args = append(args, status)
	return fmt.Sprintf(" WHERE wr.status = $%d", len(args)), args
}

func (r *repoPG) Count(ctx context.Context, status string) (int, error) {
	where, args := statusClause(status, nil)
	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM withdrawal_requests wr`+where, args...).Scan(&total)
	return total, err
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]Request, error) {
	where, args := statusClause(status, nil)
	q := fmt.Sprintf(`SELECT %s
		FROM withdrawal_requests wr
		LEFT JOIN users u ON wr.doctor_id = u.id%s
		ORDER BY wr.created_at DESC, wr.id DESC`, requestCols, where)
	if limit > 0 {
		args = append(args, limit, offset)
		q += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *req)
	}
	return items, rows.Err()
}

// LockRequest loads the request and holds a row lock on it until the
// enclosing transaction ends. Concurrent settlements of the same id queue here.
func (r *repoPG) LockRequest(ctx context.Context, id int64) (*Request, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+requestCols+`
		FROM withdrawal_requests wr
		LEFT JOIN users u ON wr.doctor_id = u.id
		WHERE wr.id = $1
		FOR UPDATE OF wr`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

func (r *repoPG) MarkCompleted(ctx context.Context, id, paidBy int64, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE withdrawal_requests
		SET status = 'completed', paid_by = $2, paid_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'pending'`, id, paidBy, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *repoPG) MarkFailed(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE withdrawal_requests
		SET status = 'failed', updated_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// EnsureWallet returns the doctor's wallet id, creating a zero-balance wallet
// on first use.
func (r *repoPG) EnsureWallet(ctx context.Context, doctorID int64, at time.Time) (int64, error) {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `INSERT INTO doctor_wallets (doctor_id, balance, created_at, updated_at)
		VALUES ($1, 0, $2, $2)
		ON CONFLICT (doctor_id) DO NOTHING`, doctorID, at); err != nil {
		return 0, err
	}
	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM doctor_wallets WHERE doctor_id = $1 FOR UPDATE`, doctorID).Scan(&id)
	return id, err
}

func (r *repoPG) DebitWallet(ctx context.Context, walletID int64, amount decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	var balance string
	err := r.conn(ctx).QueryRow(ctx, `UPDATE doctor_wallets
		SET balance = balance - $2::numeric, updated_at = $3
		WHERE id = $1
		RETURNING balance::text`, walletID, amount.String(), at).Scan(&balance)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(balance)
}

func (r *repoPG) AppendLedger(ctx context.Context, e *LedgerEntry) error {
	return r.conn(ctx).QueryRow(ctx, `INSERT INTO wallet_transactions
		(wallet_id, type, amount, description, status, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $6)
		RETURNING id`,
		e.WalletID, e.Type, e.Amount.String(), e.Description, e.Status, e.CreatedAt,
	).Scan(&e.ID)
}
