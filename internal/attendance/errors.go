package attendance

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/database"
)

var (
	ErrSessionNotFound   = fmt.Errorf("attendance session: %w", database.ErrNotFound)
	ErrRecordNotFound    = fmt.Errorf("attendance record: %w", database.ErrNotFound)
	ErrSessionInactive   = errors.New("attendance session is not active")
	ErrInvalidConfidence = errors.New("confidence must be within [0, 1]")
	ErrInvalidStatus     = errors.New("invalid attendance status")
	ErrInvalidIdentity   = errors.New("identity is required")
	ErrInvalidSession    = errors.New("invalid attendance session")
)
