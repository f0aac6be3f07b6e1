package analytics

import "context"

// Repository reads the dashboard aggregates. Revenue methods take cast to
// sum plan_price through an explicit NUMERIC cast.
type Repository interface {
	UserGrowth(ctx context.Context, months int) ([]UserGrowth, error)
	Revenue(ctx context.Context, months int, cast bool) ([]RevenuePoint, error)
	AppointmentStats(ctx context.Context, months int) ([]AppointmentStat, error)
	PaymentMethods(ctx context.Context, months int) ([]PaymentMethodStat, error)
	Counts(ctx context.Context) (*Counts, error)
	RevenueTotals(ctx context.Context, cast bool) (*RevenueTotals, error)
}
