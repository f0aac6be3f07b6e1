package subscription

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("subscription not found")

type Repository interface {
	List(ctx context.Context, f Filter, limit, offset int) ([]Subscription, error)
	Count(ctx context.Context, f Filter) (int, error)
	UpdateCounters(ctx context.Context, id int64, patch CounterPatch) (*Counters, error)
	SetActive(ctx context.Context, id int64, active bool) (*ActiveState, error)
}
