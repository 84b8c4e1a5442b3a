package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrValidation marks input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing entity or one owned by another user.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition marks an instance action not allowed from its status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNoBreaksAvailable marks a break spend with no credits left.
	ErrNoBreaksAvailable = errors.New("no break credits available")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// notFound maps gorm's record-not-found onto ErrNotFound for the named entity.
func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
