package storage

import (
	"errors"
	"fmt"

	"github.com/eecmx/citas/libs/db"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("unique constraint violated")
	// ErrInvalidReference means a referenced row is gone, e.g. the customer
	// of a new appointment was deleted concurrently.
	ErrInvalidReference = errors.New("referenced record missing")
)

// classify maps driver errors onto the package sentinels, keeping the
// original error in the chain.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNoRows(err):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidReference, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsInvalidReference(err error) bool {
	return errors.Is(err, ErrInvalidReference)
}
