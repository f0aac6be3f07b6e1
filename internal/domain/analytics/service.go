package analytics

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/docavailable/admin-api/internal/platform/cache"
)

type Service struct {
	repo   Repository
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewService caches dashboards per range for ttl. A zero ttl disables caching.
func NewService(repo Repository, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	if c == nil {
		c = cache.NopCache{}
	}
	return &Service{repo: repo, cache: c, ttl: ttl, logger: logger}
}

func cacheKey(rangeKey string) string {
	return "analytics:" + rangeKey
}

// Dashboard returns the aggregates for rangeKey. Every section is best
// effort: a failing section is logged and left empty.
func (s *Service) Dashboard(ctx context.Context, rangeKey string, refresh bool) *Dashboard {
	key, months := ParseRange(rangeKey)
	ck := cacheKey(key)

	if s.ttl > 0 {
		if refresh {
			if err := s.cache.Delete(ctx, ck); err != nil {
				s.logger.Warn().Err(err).Str("key", ck).Msg("analytics cache delete failed")
			}
		} else {
			var cached Dashboard
			hit, err := s.cache.Get(ctx, ck, &cached)
			if err != nil {
				s.logger.Warn().Err(err).Str("key", ck).Msg("analytics cache read failed")
			}
			if hit {
				return &cached
			}
		}
	}

	d := s.compute(ctx, months)

	if s.ttl > 0 {
		if err := s.cache.Set(ctx, ck, d, s.ttl); err != nil {
			s.logger.Warn().Err(err).Str("key", ck).Msg("analytics cache write failed")
		}
	}
	return d
}

func (s *Service) compute(ctx context.Context, months int) *Dashboard {
	d := &Dashboard{
		UserGrowth:       []UserGrowth{},
		RevenueData:      []RevenuePoint{},
		AppointmentStats: []AppointmentStat{},
		PaymentMethods:   []PaymentMethodStat{},
	}

	if v, err := s.repo.UserGrowth(ctx, months); err != nil {
		s.sectionFailed("userGrowth", err)
	} else if v != nil {
		d.UserGrowth = v
	}

	if v := s.revenue(ctx, months); v != nil {
		d.RevenueData = v
	}

	if v, err := s.repo.AppointmentStats(ctx, months); err != nil {
		s.sectionFailed("appointmentStats", err)
	} else if v != nil {
		d.AppointmentStats = v
	}

	if v, err := s.repo.PaymentMethods(ctx, months); err != nil {
		s.sectionFailed("paymentMethods", err)
	} else if v != nil {
		d.PaymentMethods = v
	}

	if c, err := s.repo.Counts(ctx); err != nil {
		s.sectionFailed("monthlyStats", err)
	} else {
		d.MonthlyStats.TotalUsers = c.TotalUsers
		d.MonthlyStats.NewUsers = c.NewUsers
		d.MonthlyStats.TotalAppointments = c.TotalAppointments
		d.MonthlyStats.CompletedAppointments = c.CompletedAppointments
	}

	if t := s.revenueTotals(ctx); t != nil {
		d.MonthlyStats.TotalRevenue = t.Total
		d.MonthlyStats.MonthlyRevenue = t.Monthly
	}
	return d
}

// revenue sums plan_price directly and retries once with an explicit
// NUMERIC cast when the direct sum fails.
func (s *Service) revenue(ctx context.Context, months int) []RevenuePoint {
	points, err := s.repo.Revenue(ctx, months, false)
	if err == nil {
		return points
	}
	s.logger.Warn().Err(err).Msg("revenue query failed, retrying with numeric cast")

	points, err = s.repo.Revenue(ctx, months, true)
	if err != nil {
		s.sectionFailed("revenueData", err)
		return nil
	}
	return points
}

func (s *Service) revenueTotals(ctx context.Context) *RevenueTotals {
	t, err := s.repo.RevenueTotals(ctx, false)
	if err == nil {
		return t
	}
	s.logger.Warn().Err(err).Msg("revenue totals query failed, retrying with numeric cast")

	t, err = s.repo.RevenueTotals(ctx, true)
	if err != nil {
		s.sectionFailed("revenueTotals", err)
		return nil
	}
	return t
}

func (s *Service) sectionFailed(section string, err error) {
	s.logger.Error().Err(err).Str("section", section).Msg("analytics section failed")
}
