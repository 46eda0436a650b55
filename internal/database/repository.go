package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EmbeddingReader provides read-only access to enrolled embeddings of one model.
type EmbeddingReader interface {
	// Get retrieves all samples of an identity, returns nil if the identity is unknown
	Get(ctx context.Context, identity string) ([]EnrolledEmbedding, error)
	// GetAll returns a snapshot of every identity and its samples, sorted by identity
	GetAll(ctx context.Context) ([]IdentityEmbeddings, error)
	// Count returns the number of samples stored for an identity
	Count(ctx context.Context, identity string) (int, error)
	// Identities lists enrolled identities with their sample counts, sorted by identity
	Identities(ctx context.Context) ([]IdentitySummary, error)
}

// EmbeddingStore provides write access to enrolled embeddings.
// Mutations persist synchronously. The capacity policy itself lives in the
// enrollment manager; AddWithLimit only makes its check atomic.
type EmbeddingStore interface {
	EmbeddingReader

	// Add appends a sample, creating the identity if absent
	Add(ctx context.Context, emb EnrolledEmbedding) error
	// AddWithLimit appends a sample only while the identity holds fewer than limit
	// samples (limit <= 0 means no limit). Count and insert are atomic across every
	// process sharing the store. Returns the sample count after the call and whether
	// the sample was stored.
	AddWithLimit(ctx context.Context, emb EnrolledEmbedding, limit int) (int, bool, error)
	// Clear removes every sample of an identity
	Clear(ctx context.Context, identity string) error
	// ClearAll removes every sample of every identity
	ClearAll(ctx context.Context) error
}

// SessionStore persists attendance sessions.
type SessionStore interface {
	// CreateSession stores a new session
	CreateSession(ctx context.Context, session *AttendanceSession) error
	// GetSession returns a session by ID, returns nil if not found
	GetSession(ctx context.Context, id uuid.UUID) (*AttendanceSession, error)
	// ListSessions returns all sessions, newest first
	ListSessions(ctx context.Context) ([]AttendanceSession, error)
	// DeactivateSession clears the active flag of a session.
	// Returns ErrNotFound if the session does not exist.
	DeactivateSession(ctx context.Context, id uuid.UUID) error
	// DeactivateExpired deactivates every active session whose end time is not after now.
	// Returns the IDs of the deactivated sessions.
	DeactivateExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// RecordStore persists attendance records keyed by (session, identity).
type RecordStore interface {
	// UpsertRecord inserts the record or overwrites status, confidence, image, note
	// and UpdatedAt of the existing (session, identity) record.
	// The stored record (with its original ID and CreatedAt) is returned.
	UpsertRecord(ctx context.Context, rec *AttendanceRecord) (*AttendanceRecord, error)
	// GetRecord returns the record for (session, identity), returns nil if not found
	GetRecord(ctx context.Context, sessionID uuid.UUID, identity string) (*AttendanceRecord, error)
	// ListRecords returns every record of a session, sorted by identity
	ListRecords(ctx context.Context, sessionID uuid.UUID) ([]AttendanceRecord, error)
}

// LedgerStore is the persistence needed by the attendance ledger.
type LedgerStore interface {
	SessionStore
	RecordStore
}
