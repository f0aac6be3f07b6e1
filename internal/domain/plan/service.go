package plan

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/docavailable/admin-api/internal/platform/apperr"
	"github.com/docavailable/admin-api/internal/platform/db"
)

type Service struct {
	repo   Repository
	tx     db.TxRunner
	logger zerolog.Logger
}

func NewService(repo Repository, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]Plan, error) {
	plans, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Store("failed to list plans", err)
	}
	if plans == nil {
		plans = []Plan{}
	}
	return plans, nil
}

// Update replaces a plan's editable fields from a raw PUT body.
func (s *Service) Update(ctx context.Context, id int64, body []byte) (*Plan, error) {
	u, err := ParseUpdate(body)
	if err != nil {
		var ie inputError
		if errors.As(err, &ie) {
			return nil, apperr.Invalid("%s", ie.Error())
		}
		return nil, apperr.Invalid("Invalid request body")
	}

	p, err := s.repo.Update(ctx, id, u)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("Plan not found")
	}
	if err != nil {
		return nil, apperr.Store("failed to update plan", err)
	}

	s.logger.Info().Int64("plan_id", id).Str("price", p.Price.String()).Str("currency", p.Currency).Msg("plan updated")
	return p, nil
}

// Delete removes a plan unless an active subscription still references it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		n, err := s.repo.CountActiveSubscriptions(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("Cannot delete plan with active subscriptions")
		}
		return s.repo.Delete(ctx, id)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("Plan not found")
	case apperr.Is(err, apperr.KindConflict):
		return err
	default:
		return apperr.Store("failed to delete plan", err)
	}

	s.logger.Info().Int64("plan_id", id).Msg("plan deleted")
	return nil
}
