// Package storage persists the ledger of published items between runs.
package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for common storage conditions.
var (
	// ErrStorageCorrupt indicates the ledger file exists but cannot be decoded.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
	// ErrInvalidInput indicates an empty item or destination id.
	ErrInvalidInput = errors.New("storage: invalid input")
)

// StorageError wraps storage errors with operation context.
// Use errors.As to get the details:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("failed to %s %s: %v\n", storErr.Op, storErr.Path, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("load", "save", "lock").
	Op string
	// Path is the file involved.
	Path string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *StorageError) Unwrap() error { return e.Err }

// IsCorrupt reports whether err means a present ledger could not be trusted.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrStorageCorrupt)
}

// IsLockTimeout reports whether err is a lock acquisition timeout.
func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
