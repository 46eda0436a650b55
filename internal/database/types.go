package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/rollcall/internal/vecmath"
)

// ErrInvalidEmbedding is returned when an embedding fails validation at construction.
var ErrInvalidEmbedding = errors.New("invalid embedding")

// EnrolledEmbedding represents one stored face sample of an identity.
type EnrolledEmbedding struct {
	ID        int64          `json:"id"`
	Identity  string         `json:"identity"`
	Model     string         `json:"model"`
	Vector    vecmath.Vector `json:"vector"`
	ImageRef  string         `json:"image_ref,omitempty"`
	Score     float64        `json:"score"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEnrolledEmbedding validates the input and returns an embedding ready to be stored.
// The vector is sanitized (non-finite components become 0) and CreatedAt is set to now.
func NewEnrolledEmbedding(identity, model string, vector []float64, imageRef string, score float64) (EnrolledEmbedding, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return EnrolledEmbedding{}, fmt.Errorf("%w: identity is required", ErrInvalidEmbedding)
	}
	if model == "" {
		return EnrolledEmbedding{}, fmt.Errorf("%w: model is required", ErrInvalidEmbedding)
	}
	if len(vector) == 0 {
		return EnrolledEmbedding{}, fmt.Errorf("%w: vector is empty", ErrInvalidEmbedding)
	}
	if score < 0 || score > 1 {
		return EnrolledEmbedding{}, fmt.Errorf("%w: score %.3f out of range [0,1]", ErrInvalidEmbedding, score)
	}

	return EnrolledEmbedding{
		Identity:  identity,
		Model:     model,
		Vector:    vecmath.Sanitize(vector),
		ImageRef:  imageRef,
		Score:     score,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IdentityEmbeddings groups every stored sample of one identity.
type IdentityEmbeddings struct {
	Identity   string
	Embeddings []EnrolledEmbedding
}

// Vectors returns the raw vectors of the group in insertion order.
func (ie IdentityEmbeddings) Vectors() [][]float64 {
	out := make([][]float64, len(ie.Embeddings))
	for i := range ie.Embeddings {
		out[i] = ie.Embeddings[i].Vector
	}
	return out
}

// IdentitySummary is a lightweight listing row.
type IdentitySummary struct {
	Identity     string    `json:"identity"`
	Count        int       `json:"count"`
	LastEnrolled time.Time `json:"last_enrolled"`
}

// AttendanceStatus is the status of an attendance record.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusLate    AttendanceStatus = "late"
	StatusExcused AttendanceStatus = "excused"
)

// Valid reports whether s is one of the known statuses.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// AttendanceSession is a time-bounded attendance-taking event.
type AttendanceSession struct {
	ID        uuid.UUID `json:"id"`
	ClassRef  string    `json:"class_ref"`
	Date      time.Time `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitzero"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is active but its end time has passed.
func (s *AttendanceSession) Expired(now time.Time) bool {
	return s.Active && !s.EndTime.IsZero() && !now.Before(s.EndTime)
}

// AttendanceRecord is the durable outcome for one identity in one session.
type AttendanceRecord struct {
	ID         uuid.UUID        `json:"id"`
	SessionID  uuid.UUID        `json:"session_id"`
	Identity   string           `json:"identity"`
	Status     AttendanceStatus `json:"status"`
	Confidence float64          `json:"confidence"`
	ImageRef   string           `json:"image_ref,omitempty"`
	Note       string           `json:"note,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// SessionKey returns the unique (session, identity) key of the record.
func (r *AttendanceRecord) SessionKey() string {
	return RecordKey(r.SessionID, r.Identity)
}

// RecordKey builds the unique key used for per-record locking and map storage.
func RecordKey(sessionID uuid.UUID, identity string) string {
	return sessionID.String() + "/" + identity
}
