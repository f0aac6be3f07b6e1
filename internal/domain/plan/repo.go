package plan

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("plan not found")

type Repository interface {
	List(ctx context.Context) ([]Plan, error)
	Update(ctx context.Context, id int64, u *Update) (*Plan, error)
	CountActiveSubscriptions(ctx context.Context, planID int64) (int, error)
	Delete(ctx context.Context, id int64) error
}
