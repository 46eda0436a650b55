package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kozaktomas/rollcall/internal/database"
)

// pqUniqueViolation is the SQLSTATE of a unique constraint violation.
const pqUniqueViolation = "23505"

// LedgerRepository provides PostgreSQL-backed session and attendance storage
type LedgerRepository struct {
	pool *Pool
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(pool *Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

const sessionColumns = "id, class_ref, session_date, start_time, end_time, active, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*database.AttendanceSession, error) {
	var s database.AttendanceSession
	var endTime sql.NullTime
	if err := row.Scan(&s.ID, &s.ClassRef, &s.Date, &s.StartTime, &endTime, &s.Active, &s.CreatedAt); err != nil {
		return nil, err
	}
	if endTime.Valid {
		s.EndTime = endTime.Time
	}
	return &s, nil
}

// CreateSession stores a new session
func (r *LedgerRepository) CreateSession(ctx context.Context, s *database.AttendanceSession) error {
	var endTime sql.NullTime
	if !s.EndTime.IsZero() {
		endTime = sql.NullTime{Time: s.EndTime, Valid: true}
	}

	_, err := r.pool.Exec(ctx,
		"INSERT INTO attendance_sessions ("+sessionColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		s.ID, s.ClassRef, s.Date, s.StartTime, endTime, s.Active, s.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("session %s already exists", s.ID)
		}
		return database.NewStoreError("create session", "", err)
	}
	return nil
}

// GetSession returns a session by ID, returns nil if not found
func (r *LedgerRepository) GetSession(ctx context.Context, id uuid.UUID) (*database.AttendanceSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, "SELECT "+sessionColumns+" FROM attendance_sessions WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.NewStoreError("get session", "", err)
	}
	return s, nil
}

// ListSessions returns all sessions, newest first
func (r *LedgerRepository) ListSessions(ctx context.Context) ([]database.AttendanceSession, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+sessionColumns+" FROM attendance_sessions ORDER BY start_time DESC")
	if err != nil {
		return nil, database.NewStoreError("list sessions", "", err)
	}
	defer rows.Close()

	var result []database.AttendanceSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, database.NewStoreError("list sessions", "", fmt.Errorf("scan session: %w", err))
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, database.NewStoreError("list sessions", "", err)
	}
	return result, nil
}

// DeactivateSession clears the active flag of a session
func (r *LedgerRepository) DeactivateSession(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, "UPDATE attendance_sessions SET active = FALSE WHERE id = $1", id)
	if err != nil {
		return database.NewStoreError("deactivate session", "", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return database.NewStoreError("deactivate session", "", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// DeactivateExpired deactivates active sessions whose end time has passed
func (r *LedgerRepository) DeactivateExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `
		UPDATE attendance_sessions SET active = FALSE
		WHERE active AND end_time IS NOT NULL AND end_time <= $1
		RETURNING id
	`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, database.NewStoreError("deactivate expired", "", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, database.NewStoreError("deactivate expired", "", fmt.Errorf("scan id: %w", err))
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, database.NewStoreError("deactivate expired", "", err)
	}
	return ids, nil
}

const recordColumns = "id, session_id, identity, status, confidence, image_ref, note, created_at, updated_at"

func scanRecord(row rowScanner) (*database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	var status string
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.Identity, &status, &rec.Confidence,
		&rec.ImageRef, &rec.Note, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Status = database.AttendanceStatus(status)
	return &rec, nil
}

// UpsertRecord inserts or overwrites the (session, identity) record
func (r *LedgerRepository) UpsertRecord(ctx context.Context, rec *database.AttendanceRecord) (*database.AttendanceRecord, error) {
	query := `
		INSERT INTO attendance_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, identity) DO UPDATE SET
			status = EXCLUDED.status,
			confidence = EXCLUDED.confidence,
			image_ref = EXCLUDED.image_ref,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + recordColumns

	stored, err := scanRecord(r.pool.QueryRow(ctx, query,
		rec.ID, rec.SessionID, rec.Identity, string(rec.Status), rec.Confidence,
		rec.ImageRef, rec.Note, rec.CreatedAt, rec.UpdatedAt,
	))
	if err != nil {
		return nil, database.NewStoreError("upsert record", rec.Identity, err)
	}
	return stored, nil
}

// GetRecord returns the record for (session, identity), returns nil if not found
func (r *LedgerRepository) GetRecord(ctx context.Context, sessionID uuid.UUID, identity string) (*database.AttendanceRecord, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE session_id = $1 AND identity = $2",
		sessionID, identity,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.NewStoreError("get record", identity, err)
	}
	return rec, nil
}

// ListRecords returns every record of a session, sorted by identity
func (r *LedgerRepository) ListRecords(ctx context.Context, sessionID uuid.UUID) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE session_id = $1 ORDER BY identity",
		sessionID,
	)
	if err != nil {
		return nil, database.NewStoreError("list records", "", err)
	}
	defer rows.Close()

	var result []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, database.NewStoreError("list records", "", fmt.Errorf("scan record: %w", err))
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, database.NewStoreError("list records", "", err)
	}
	return result, nil
}

var _ database.LedgerStore = (*LedgerRepository)(nil)
