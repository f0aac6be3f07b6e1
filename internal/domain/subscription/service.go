package subscription

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/docavailable/admin-api/internal/platform/apperr"
	"github.com/docavailable/admin-api/pkg/pagination"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

type Listing struct {
	Items       []Subscription
	TotalCount  int
	TotalPages  int
	CurrentPage int
}

func (s *Service) List(ctx context.Context, f Filter, pg pagination.Params) (*Listing, error) {
	switch f.Status {
	case "", StatusAll, StatusActive, StatusInactive:
	default:
		return nil, apperr.Invalid("Invalid status filter")
	}

	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, apperr.Store("failed to count subscriptions", err)
	}
	items, err := s.repo.List(ctx, f, pg.Limit, pg.Offset())
	if err != nil {
		return nil, apperr.Store("failed to list subscriptions", err)
	}
	if items == nil {
		items = []Subscription{}
	}

	page := pagination.NewPage(pg, total)
	return &Listing{
		Items:       items,
		TotalCount:  page.TotalCount,
		TotalPages:  page.TotalPages,
		CurrentPage: page.CurrentPage,
	}, nil
}

// UpdateCounters applies a partial counter update from a raw JSON body.
func (s *Service) UpdateCounters(ctx context.Context, id int64, body []byte) (*Counters, error) {
	patch, err := ParseCounterPatch(body)
	if err != nil {
		var pe patchError
		if errors.As(err, &pe) {
			return nil, apperr.Invalid("%s", pe.Error())
		}
		return nil, apperr.Invalid("Invalid request body")
	}

	out, err := s.repo.UpdateCounters(ctx, id, patch)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("Subscription not found")
	}
	if err != nil {
		return nil, apperr.Store("failed to update subscription", err)
	}

	s.logger.Info().Int64("subscription_id", id).Interface("counters", patch).Msg("subscription counters updated")
	return out, nil
}

func (s *Service) SetActive(ctx context.Context, id int64, active bool) (*ActiveState, error) {
	out, err := s.repo.SetActive(ctx, id, active)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("Subscription not found")
	}
	if err != nil {
		return nil, apperr.Store("failed to update subscription", err)
	}
	return out, nil
}
