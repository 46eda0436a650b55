package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/kozaktomas/rollcall/internal/database"
)

// mysqlDuplicateEntry is the MySQL error number of a duplicate key violation.
const mysqlDuplicateEntry = 1062

// LedgerRepository stores sessions and attendance records in MariaDB.
type LedgerRepository struct {
	pool *Pool
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
		endTime = sql.NullTime{Time: s.EndTime.UTC(), Valid: true}
	}

	_, err := r.pool.db.ExecContext(ctx,
		"INSERT INTO attendance_sessions ("+sessionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.ID, s.ClassRef, s.Date.UTC(), s.StartTime.UTC(), endTime, s.Active, s.CreatedAt.UTC(),
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return fmt.Errorf("session %s already exists", s.ID)
		}
		return database.NewStoreError("create session", "", err)
	}
	return nil
}

// GetSession returns a session by ID, returns nil if not found
func (r *LedgerRepository) GetSession(ctx context.Context, id uuid.UUID) (*database.AttendanceSession, error) {
	s, err := scanSession(r.pool.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM attendance_sessions WHERE id = ?", id))
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
	rows, err := r.pool.db.QueryContext(ctx, "SELECT "+sessionColumns+" FROM attendance_sessions ORDER BY start_time DESC")
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
	// RowsAffected is 0 when the row is unchanged, so check existence first.
	var exists int
	err := r.pool.db.QueryRowContext(ctx, "SELECT 1 FROM attendance_sessions WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ErrNotFound
	}
	if err != nil {
		return database.NewStoreError("deactivate session", "", err)
	}

	if _, err := r.pool.db.ExecContext(ctx, "UPDATE attendance_sessions SET active = FALSE WHERE id = ?", id); err != nil {
		return database.NewStoreError("deactivate session", "", err)
	}
	return nil
}

// DeactivateExpired deactivates active sessions whose end time has passed
func (r *LedgerRepository) DeactivateExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, database.NewStoreError("deactivate expired", "", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM attendance_sessions WHERE active AND end_time IS NOT NULL AND end_time <= ? FOR UPDATE",
		now.UTC(),
	)
	if err != nil {
		return nil, database.NewStoreError("deactivate expired", "", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, database.NewStoreError("deactivate expired", "", fmt.Errorf("scan id: %w", err))
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, database.NewStoreError("deactivate expired", "", err)
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "UPDATE attendance_sessions SET active = FALSE WHERE id = ?", id); err != nil {
			return nil, database.NewStoreError("deactivate expired", "", err)
		}
	}

	if err := tx.Commit(); err != nil {
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
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, database.NewStoreError("upsert record", rec.Identity, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO attendance_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			confidence = VALUES(confidence),
			image_ref = VALUES(image_ref),
			note = VALUES(note),
			updated_at = VALUES(updated_at)`
	_, err = tx.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.Identity, string(rec.Status), rec.Confidence,
		rec.ImageRef, rec.Note, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return nil, database.NewStoreError("upsert record", rec.Identity, err)
	}

	stored, err := scanRecord(tx.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE session_id = ? AND identity = ?",
		rec.SessionID, rec.Identity,
	))
	if err != nil {
		return nil, database.NewStoreError("upsert record", rec.Identity, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, database.NewStoreError("upsert record", rec.Identity, err)
	}
	return stored, nil
}

// GetRecord returns the record for (session, identity), returns nil if not found
func (r *LedgerRepository) GetRecord(ctx context.Context, sessionID uuid.UUID, identity string) (*database.AttendanceRecord, error) {
	rec, err := scanRecord(r.pool.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE session_id = ? AND identity = ?",
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
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE session_id = ? ORDER BY identity",
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
