package enrollment

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded is matched by every *CapacityError.
	ErrCapacityExceeded = errors.New("embedding limit reached")

	// ErrInvalidEnrollment is returned for requests that fail validation.
	ErrInvalidEnrollment = errors.New("invalid enrollment")
)

// CapacityError reports an enrollment rejected because the identity is full.
type CapacityError struct {
	Identity string
	Limit    int
	Count    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("identity %q has %d of %d embeddings: %v", e.Identity, e.Count, e.Limit, ErrCapacityExceeded)
}

// Is makes errors.Is(err, ErrCapacityExceeded) hold.
func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}
