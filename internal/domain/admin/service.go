package admin

import (
	"context"

	"github.com/docavailable/admin-api/internal/platform/apperr"
)

type Service struct {
	repo IdentityRepository
}

func NewService(repo IdentityRepository) *Service {
	return &Service{repo: repo}
}

// ListActive returns the active admins ordered by name.
func (s *Service) ListActive(ctx context.Context) ([]Summary, error) {
	admins, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, apperr.Store("failed to list admins", err)
	}
	out := make([]Summary, 0, len(admins))
	for _, a := range admins {
		out = append(out, a.Summary())
	}
	return out, nil
}
