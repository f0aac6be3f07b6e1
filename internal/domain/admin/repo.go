package admin

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// IdentityRepository looks admins and users up across both identity schemes.
type IdentityRepository interface {
	AdminEmail(ctx context.Context, adminID int64) (string, error)
	UserIDByEmail(ctx context.Context, email string) (int64, error)
	ListActive(ctx context.Context) ([]Admin, error)
}
