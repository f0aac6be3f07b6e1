package encounter

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("encounter not found")

// Repository reads the three encounter tables as one feed and updates rows
// in exactly one of them.
type Repository interface {
	// List returns one page of variants admitted by f, newest first.
	List(ctx context.Context, f Filter, limit, offset int) ([]Variant, error)
	// Count returns the size of the full filtered union.
	Count(ctx context.Context, f Filter) (int, error)
	// UpdateStatus sets the status of the row id in the table of src.
	UpdateStatus(ctx context.Context, src SourceType, id int64, status string) (*StatusChange, error)
}
