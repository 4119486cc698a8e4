package docstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested document or object does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidKey indicates an object key escaping its bucket.
	ErrInvalidKey = errors.New("invalid object key")
)

// NotFoundError wraps ErrNotFound with entity details.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
