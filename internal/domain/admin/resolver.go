package admin

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/docavailable/admin-api/internal/platform/apperr"
)

// Resolver maps an admin reference to a canonical user id. It understands
// the legacy slug directory, ids from the admins table and, failing both,
// the caller's own email.
type Resolver struct {
	repo   IdentityRepository
	legacy map[string]string
	logger zerolog.Logger
}

// NewResolver takes the legacy slug to email directory as static data.
func NewResolver(repo IdentityRepository, legacy map[string]string, logger zerolog.Logger) *Resolver {
	dir := make(map[string]string, len(legacy))
	for slug, email := range legacy {
		dir[slug] = email
	}
	return &Resolver{repo: repo, legacy: dir, logger: logger}
}

// ResolveAdminUserID returns nil without an error when nobody can be
// attributed. An unknown admins-table id is an InvalidArgument error.
func (r *Resolver) ResolveAdminUserID(ctx context.Context, completedBy, callerEmail string) (*int64, error) {
	ref := strings.TrimSpace(completedBy)

	var resolved *int64
	switch {
	case ref == "":
	case r.isLegacy(ref):
		id, err := r.legacyUser(ctx, ref)
		if err != nil {
			return nil, err
		}
		resolved = id
	default:
		id, err := r.tableUser(ctx, ref)
		if err != nil {
			return nil, err
		}
		resolved = id
	}
	if resolved != nil {
		return resolved, nil
	}

	if callerEmail == "" {
		return nil, nil
	}
	return r.userByEmail(ctx, callerEmail)
}

func (r *Resolver) isLegacy(slug string) bool {
	_, ok := r.legacy[slug]
	return ok
}

// legacyUser never fails on a missing user; legacy slugs may point at
// addresses that were never migrated.
func (r *Resolver) legacyUser(ctx context.Context, slug string) (*int64, error) {
	email := r.legacy[slug]
	id, err := r.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if id == nil {
		r.logger.Warn().
			Str("slug", slug).
			Str("email", email).
			Msg("legacy admin has no matching user")
	}
	return id, nil
}

func (r *Resolver) tableUser(ctx context.Context, ref string) (*int64, error) {
	adminID, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || adminID <= 0 {
		return nil, apperr.Invalid("Invalid admin ID")
	}
	email, err := r.repo.AdminEmail(ctx, adminID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Invalid("Admin not found")
	}
	if err != nil {
		return nil, apperr.Store("failed to look up admin", err)
	}
	return r.userByEmail(ctx, email)
}

func (r *Resolver) userByEmail(ctx context.Context, email string) (*int64, error) {
	id, err := r.repo.UserIDByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("failed to look up user", err)
	}
	return &id, nil
}
