package gateway

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks a mutation rejected before it reached the store.
// Returned errors wrap it with the offending field.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound is returned when SetCompleted or Delete names an unknown id.
// It is not fatal: nothing was changed and nothing is published.
var ErrNotFound = errors.New("record not found")

// StorageError indicates that the backing store failed. The mutation was not
// applied and no snapshot was published; callers may retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Retryable reports that the same request may succeed later.
func (e *StorageError) Retryable() bool { return true }

// IsStorageError reports whether err (or any error in its chain) is a
// StorageError.
func IsStorageError(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}

// Invalidf returns an error wrapping ErrInvalidRequest with a formatted detail.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
