package database

import (
	"errors"
	"fmt"
)

var (
	// ErrStore is the sentinel matched by every storage failure.
	ErrStore = errors.New("store error")

	// ErrNotFound is returned when a session or record does not exist.
	ErrNotFound = errors.New("not found")
)

// StoreError wraps an I/O or serialization failure of a storage backend.
type StoreError struct {
	Op       string
	Identity string
	Err      error
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, identity string, err error) *StoreError {
	return &StoreError{Op: op, Identity: identity, Err: err}
}

func (e *StoreError) Error() string {
	if e.Identity != "" {
		return fmt.Sprintf("store %s %q: %v", e.Op, e.Identity, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStore) hold for every StoreError.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}
