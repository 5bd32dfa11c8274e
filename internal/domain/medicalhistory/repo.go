package medicalhistory

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an entry does not exist for the caller.
var ErrNotFound = errors.New("medical history entry not found")

// ErrInvalidEntry wraps validation failures on create.
var ErrInvalidEntry = errors.New("invalid medical history entry")

// Repository defines persistence for medical history entries.
type Repository interface {
	// Create inserts e. When an entry with the same (user, reference) already
	// exists, e is filled from the stored row and created is false.
	Create(ctx context.Context, e *Entry) (created bool, err error)
	GetByID(ctx context.Context, id string) (*Entry, error)
	GetByReference(ctx context.Context, userID, referenceID string) (*Entry, error)
	ListByUser(ctx context.Context, userID, condition string, limit, offset int) ([]*Entry, int, error)
	SetActive(ctx context.Context, id string, active bool) error
}
