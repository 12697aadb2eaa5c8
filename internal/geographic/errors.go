package geographic

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrStoreUnavailable      = errors.New("geometry store unavailable")
	ErrGeometrySerialization = errors.New("geometry serialization failed")
	ErrNotFound              = errors.New("entity not found")
)

// InvalidArgumentError names the request field that was rejected.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// Invalid builds an InvalidArgumentError.
func Invalid(field, format string, args ...any) error {
	return &InvalidArgumentError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a backend failure so callers can match ErrStoreUnavailable
// while keeping the cause.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
