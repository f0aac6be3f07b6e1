package withdrawal

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound   = errors.New("withdrawal request not found")
	ErrNotPending = errors.New("withdrawal request is not pending")
)

// Repository is the withdrawal store. The settlement methods expect to run
// inside one transaction; LockRequest holds the row until it ends.
type Repository interface {
	List(ctx context.Context, status string, limit, offset int) ([]Request, error)
	Count(ctx context.Context, status string) (int, error)

	LockRequest(ctx context.Context, id int64) (*Request, error)
	MarkCompleted(ctx context.Context, id, paidBy int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, at time.Time) error
	EnsureWallet(ctx context.Context, doctorID int64, at time.Time) (int64, error)
	DebitWallet(ctx context.Context, walletID int64, amount decimal.Decimal, at time.Time) (decimal.Decimal, error)
	AppendLedger(ctx context.Context, entry *LedgerEntry) error
}
