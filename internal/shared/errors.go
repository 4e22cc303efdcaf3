package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates client authentication failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnavailable marks upstream failures: the answer could not be
	// determined, which callers must treat differently from a denial.
	ErrUnavailable = errors.New("upstream unavailable")
)

// Unavailable wraps a store or provider error so callers can map it to a
// 503 instead of a 403. The original error stays in the chain.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
