package filestore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/rollcall/internal/database"
)

// ledgerDocument is the on-disk layout of sessions and attendance records.
type ledgerDocument struct {
	Version  int                          `json:"version"`
	Sessions []database.AttendanceSession `json:"sessions"`
	Records  []database.AttendanceRecord  `json:"records"`
}

func (d ledgerDocument) clone() ledgerDocument {
	return ledgerDocument{
		Version:  d.Version,
		Sessions: slices.Clone(d.Sessions),
		Records:  slices.Clone(d.Records),
	}
}

// Ledger implements database.LedgerStore on a JSON document.
type Ledger struct {
	file *document
	doc  ledgerDocument
	mu   sync.Mutex
}

// NewLedger loads (or starts) the ledger document at path.
func NewLedger(path string) (*Ledger, error) {
	l := &Ledger{
		file: newDocument(path),
		doc:  ledgerDocument{Version: CurrentVersion},
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.refresh(); err != nil {
		return nil, database.NewStoreError("load", "", err)
	}
	return l, nil
}

// refresh reloads the document when another process replaced it. Must be called with mu held.
func (l *Ledger) refresh() error {
	stale, err := l.file.stale()
	if err != nil || !stale {
		return err
	}

	data, info, err := l.file.read()
	if err != nil {
		return err
	}
	doc := ledgerDocument{Version: CurrentVersion}
	if data != nil {
		if err := l.file.decode(data, &doc); err != nil {
			return err
		}
		if doc.Version > CurrentVersion {
			return fmt.Errorf("unsupported ledger version %d", doc.Version)
		}
		doc.Version = CurrentVersion
	}
	l.doc = doc
	l.file.info = info
	return nil
}

// update applies fn to a fresh copy of the document under the cross-process
// lock and persists it when fn reports a change.
func (l *Ledger) update(op string, fn func(doc *ledgerDocument) (bool, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	unlock, err := l.file.lock()
	if err != nil {
		return database.NewStoreError(op, "", err)
	}
	defer unlock()

	if err := l.refresh(); err != nil {
		return database.NewStoreError(op, "", err)
	}

	doc := l.doc.clone()
	changed, err := fn(&doc)
	if err != nil || !changed {
		return err
	}
	if err := l.file.write(doc); err != nil {
		return database.NewStoreError(op, "", err)
	}
	l.doc = doc
	return nil
}

// view runs fn on the up-to-date document.
func (l *Ledger) view(op string, fn func(doc *ledgerDocument)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.refresh(); err != nil {
		return database.NewStoreError(op, "", err)
	}
	fn(&l.doc)
	return nil
}

// CreateSession stores a new session.
func (l *Ledger) CreateSession(_ context.Context, session *database.AttendanceSession) error {
	return l.update("create session", func(doc *ledgerDocument) (bool, error) {
		for i := range doc.Sessions {
			if doc.Sessions[i].ID == session.ID {
				return false, fmt.Errorf("session %s already exists", session.ID)
			}
		}
		doc.Sessions = append(doc.Sessions, *session)
		return true, nil
	})
}

// GetSession returns a session by ID, returns nil if not found.
func (l *Ledger) GetSession(_ context.Context, id uuid.UUID) (*database.AttendanceSession, error) {
	var found *database.AttendanceSession
	err := l.view("get session", func(doc *ledgerDocument) {
		for i := range doc.Sessions {
			if doc.Sessions[i].ID == id {
				s := doc.Sessions[i]
				found = &s
				return
			}
		}
	})
	return found, err
}

// ListSessions returns all sessions, newest first.
func (l *Ledger) ListSessions(_ context.Context) ([]database.AttendanceSession, error) {
	var result []database.AttendanceSession
	err := l.view("list sessions", func(doc *ledgerDocument) {
		result = slices.Clone(doc.Sessions)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})
	return result, nil
}

// DeactivateSession clears the active flag of a session.
func (l *Ledger) DeactivateSession(_ context.Context, id uuid.UUID) error {
	return l.update("deactivate session", func(doc *ledgerDocument) (bool, error) {
		for i := range doc.Sessions {
			if doc.Sessions[i].ID != id {
				continue
			}
			if !doc.Sessions[i].Active {
				return false, nil
			}
			doc.Sessions[i].Active = false
			return true, nil
		}
		return false, database.ErrNotFound
	})
}

// DeactivateExpired deactivates active sessions whose end time has passed.
func (l *Ledger) DeactivateExpired(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := l.update("deactivate expired", func(doc *ledgerDocument) (bool, error) {
		ids = nil
		for i := range doc.Sessions {
			if doc.Sessions[i].Expired(now) {
				doc.Sessions[i].Active = false
				ids = append(ids, doc.Sessions[i].ID)
			}
		}
		return len(ids) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UpsertRecord inserts or overwrites the (session, identity) record.
func (l *Ledger) UpsertRecord(_ context.Context, rec *database.AttendanceRecord) (*database.AttendanceRecord, error) {
	var stored database.AttendanceRecord
	err := l.update("upsert record", func(doc *ledgerDocument) (bool, error) {
		for i := range doc.Records {
			existing := &doc.Records[i]
			if existing.SessionID != rec.SessionID || existing.Identity != rec.Identity {
				continue
			}
			existing.Status = rec.Status
			existing.Confidence = rec.Confidence
			existing.ImageRef = rec.ImageRef
			existing.Note = rec.Note
			existing.UpdatedAt = rec.UpdatedAt
			stored = *existing
			return true, nil
		}
		stored = *rec
		doc.Records = append(doc.Records, stored)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetRecord returns the record for (session, identity), returns nil if not found.
func (l *Ledger) GetRecord(_ context.Context, sessionID uuid.UUID, identity string) (*database.AttendanceRecord, error) {
	var found *database.AttendanceRecord
	err := l.view("get record", func(doc *ledgerDocument) {
		for i := range doc.Records {
			if doc.Records[i].SessionID == sessionID && doc.Records[i].Identity == identity {
				r := doc.Records[i]
				found = &r
				return
			}
		}
	})
	return found, err
}

// ListRecords returns every record of a session, sorted by identity.
func (l *Ledger) ListRecords(_ context.Context, sessionID uuid.UUID) ([]database.AttendanceRecord, error) {
	var result []database.AttendanceRecord
	err := l.view("list records", func(doc *ledgerDocument) {
		for _, r := range doc.Records {
			if r.SessionID == sessionID {
				result = append(result, r)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Identity < result[j].Identity })
	return result, nil
}
