// Package attendance records who was present in which session.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/face"
	"github.com/kozaktomas/rollcall/internal/keylock"
)

// SessionInput describes a session to open.
type SessionInput struct {
	ClassRef  string    `json:"class_ref"`
	Date      time.Time `json:"date,omitzero"`
	StartTime time.Time `json:"start_time,omitzero"`
	EndTime   time.Time `json:"end_time,omitzero"`
}

// Ledger writes attendance records. Writes to the same (session, identity) pair are
// serialized; the last writer wins. Writes to different pairs run concurrently.
type Ledger struct {
	store  database.LedgerStore
	locks  *keylock.Map
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLedger creates a ledger over store.
func NewLedger(store database.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		locks:  keylock.New(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordPresence marks identity present in an active session.
func (l *Ledger) RecordPresence(ctx context.Context, sessionID uuid.UUID, identity string, confidence float64, imageRef string) (*database.AttendanceRecord, error) {
	identity = face.NormalizeLabel(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidConfidence, confidence)
	}

	session, err := l.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, fmt.Errorf("%w: %s", ErrSessionInactive, sessionID)
	}

	unlock := l.locks.Lock(database.RecordKey(sessionID, identity))
	defer unlock()

	rec, err := l.upsert(ctx, &database.AttendanceRecord{
		SessionID:  sessionID,
		Identity:   identity,
		Status:     database.StatusPresent,
		Confidence: confidence,
		ImageRef:   imageRef,
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("recorded presence",
		"session", sessionID,
		"identity", identity,
		"confidence", confidence,
	)
	return rec, nil
}

// SetStatus overrides the status of identity in a session. Allowed on inactive sessions
// so records can be corrected after the fact. Confidence and image of an existing
// record are kept.
func (l *Ledger) SetStatus(ctx context.Context, sessionID uuid.UUID, identity string, status database.AttendanceStatus, note string) (*database.AttendanceRecord, error) {
	identity = face.NormalizeLabel(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}
	status = database.AttendanceStatus(strings.ToLower(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	if _, err := l.Session(ctx, sessionID); err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(database.RecordKey(sessionID, identity))
	defer unlock()

	rec := &database.AttendanceRecord{
		SessionID: sessionID,
		Identity:  identity,
		Status:    status,
		Note:      strings.TrimSpace(note),
	}
	existing, err := l.store.GetRecord(ctx, sessionID, identity)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if existing != nil {
		rec.Confidence = existing.Confidence
		rec.ImageRef = existing.ImageRef
	}

	stored, err := l.upsert(ctx, rec)
	if err != nil {
		return nil, err
	}

	l.logger.Info("attendance status set",
		"session", sessionID,
		"identity", identity,
		"status", status,
	)
	return stored, nil
}

// upsert fills IDs and timestamps and writes rec. Callers hold the record lock.
func (l *Ledger) upsert(ctx context.Context, rec *database.AttendanceRecord) (*database.AttendanceRecord, error) {
	now := l.now()
	rec.ID = uuid.New()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	stored, err := l.store.UpsertRecord(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("upsert record: %w", err)
	}
	return stored, nil
}

// Records returns every record of a session, sorted by identity.
func (l *Ledger) Records(ctx context.Context, sessionID uuid.UUID) ([]database.AttendanceRecord, error) {
	if _, err := l.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	records, err := l.store.ListRecords(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// Record returns the record of identity in a session.
func (l *Ledger) Record(ctx context.Context, sessionID uuid.UUID, identity string) (*database.AttendanceRecord, error) {
	identity = face.NormalizeLabel(identity)
	rec, err := l.store.GetRecord(ctx, sessionID, identity)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrRecordNotFound, identity, sessionID)
	}
	return rec, nil
}

// OpenSession creates an active session. StartTime defaults to now and Date to
// the day of StartTime.
func (l *Ledger) OpenSession(ctx context.Context, in SessionInput) (*database.AttendanceSession, error) {
	classRef := strings.TrimSpace(in.ClassRef)
	if classRef == "" {
		return nil, fmt.Errorf("%w: class reference is required", ErrInvalidSession)
	}

	now := l.now()
	start := in.StartTime
	if start.IsZero() {
		start = now
	}
	date := in.Date
	if date.IsZero() {
		date = start
	}
	y, m, d := date.UTC().Date()
	date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	if !in.EndTime.IsZero() && !in.EndTime.After(start) {
		return nil, fmt.Errorf("%w: end time %s is not after start time %s", ErrInvalidSession,
			in.EndTime.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	session := &database.AttendanceSession{
		ID:        uuid.New(),
		ClassRef:  classRef,
		Date:      date,
		StartTime: start.UTC(),
		EndTime:   in.EndTime.UTC(),
		Active:    true,
		CreatedAt: now,
	}

	if err := l.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	l.logger.Info("session opened", "session", session.ID, "class", classRef)
	return session, nil
}

// Session returns a session by ID.
func (l *Ledger) Session(ctx context.Context, id uuid.UUID) (*database.AttendanceSession, error) {
	session, err := l.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

// Sessions returns every session, newest first.
func (l *Ledger) Sessions(ctx context.Context) ([]database.AttendanceSession, error) {
	sessions, err := l.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// DeactivateSession stops a session from accepting presence records.
func (l *Ledger) DeactivateSession(ctx context.Context, id uuid.UUID) error {
	if err := l.store.DeactivateSession(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return fmt.Errorf("deactivate session: %w", err)
	}
	l.logger.Info("session deactivated", "session", id)
	return nil
}

// DeactivateExpired deactivates every active session whose end time has passed.
func (l *Ledger) DeactivateExpired(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := l.store.DeactivateExpired(ctx, l.now())
	if err != nil {
		return nil, fmt.Errorf("deactivate expired sessions: %w", err)
	}
	for _, id := range ids {
		l.logger.Info("session expired", "session", id)
	}
	return ids, nil
}
