package encounter

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

// ListEncounters returns one page of the unified feed. The total is counted
// over the whole filtered union, independent of the page.
func (s *Service) ListEncounters(ctx context.Context, f Filter, pg pagination.Params) (*Listing, error) {
	f = f.normalized()

	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, apperr.Store("failed to count encounters", err)
	}

	variants, err := s.repo.List(ctx, f, pg.Limit, pg.Offset())
	if err != nil {
		return nil, apperr.Store("failed to list encounters", err)
	}

	items := make([]Encounter, 0, len(variants))
	for _, v := range variants {
		items = append(items, v.Project())
	}

	page := pagination.NewPage(pg, total)
	return &Listing{
		Items:       items,
		TotalCount:  page.TotalCount,
		TotalPages:  page.TotalPages,
		CurrentPage: page.CurrentPage,
	}, nil
}

// UpdateStatus changes the status of one row in the table named by
// sourceType. The id alone is ambiguous across tables.
func (s *Service) UpdateStatus(ctx context.Context, id int64, sourceType, status string) (*StatusChange, SourceType, error) {
	if status == "" {
		return nil, "", apperr.Invalid("Status is required")
	}
	if sourceType == "" {
		return nil, "", apperr.Invalid("Source type is required")
	}
	if !Statuses[status] {
		return nil, "", apperr.Invalid("Invalid status")
	}
	src, ok := ParseSourceType(sourceType)
	if !ok {
		return nil, "", apperr.Invalid("Invalid source type")
	}

	change, err := s.repo.UpdateStatus(ctx, src, id, status)
	if errors.Is(err, ErrNotFound) {
		return nil, src, apperr.NotFound("%s not found", src.Label())
	}
	if err != nil {
		return nil, src, apperr.Store("failed to update status", err)
	}

	s.logger.Info().
		Int64("id", id).
		Str("source_type", string(src)).
		Str("status", status).
		Msg("encounter status updated")

	return change, src, nil
}
