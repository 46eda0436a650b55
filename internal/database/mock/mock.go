// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/rollcall/internal/database"
)

// MockEmbeddingStore is a mock implementation of database.EmbeddingStore
type MockEmbeddingStore struct {
	mu         sync.RWMutex
	embeddings map[string][]database.EnrolledEmbedding
	nextID     int64

	// Call counters
	GetCalls    int
	GetAllCalls int

	// Error injection
	GetError        error
	GetAllError     error
	CountError      error
	IdentitiesError error
	AddError        error
	ClearError      error
	ClearAllError   error
}

// NewMockEmbeddingStore creates a new mock embedding store
func NewMockEmbeddingStore() *MockEmbeddingStore {
	return &MockEmbeddingStore{
		embeddings: make(map[string][]database.EnrolledEmbedding),
	}
}

// Seed adds raw vectors for an identity without going through Add
func (m *MockEmbeddingStore) Seed(identity string, vectors ...[]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vectors {
		m.nextID++
		m.embeddings[identity] = append(m.embeddings[identity], database.EnrolledEmbedding{
			ID:        m.nextID,
			Identity:  identity,
			Vector:    slices.Clone(v),
			CreatedAt: time.Now().UTC(),
		})
	}
}

// Get retrieves all samples of an identity
func (m *MockEmbeddingStore) Get(ctx context.Context, identity string) ([]database.EnrolledEmbedding, error) {
	m.mu.Lock()
	m.GetCalls++
	m.mu.Unlock()

	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.embeddings[identity]
	if len(list) == 0 {
		return nil, nil
	}
	return slices.Clone(list), nil
}

// GetAll returns every identity sorted by label
func (m *MockEmbeddingStore) GetAll(ctx context.Context) ([]database.IdentityEmbeddings, error) {
	m.mu.Lock()
	m.GetAllCalls++
	m.mu.Unlock()

	if m.GetAllError != nil {
		return nil, m.GetAllError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]database.IdentityEmbeddings, 0, len(m.embeddings))
	for identity, list := range m.embeddings {
		if len(list) == 0 {
			continue
		}
		result = append(result, database.IdentityEmbeddings{Identity: identity, Embeddings: slices.Clone(list)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Identity < result[j].Identity })
	return result, nil
}

// Count returns the number of samples of an identity
func (m *MockEmbeddingStore) Count(ctx context.Context, identity string) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embeddings[identity]), nil
}

// Identities lists identities with sample counts
func (m *MockEmbeddingStore) Identities(ctx context.Context) ([]database.IdentitySummary, error) {
	if m.IdentitiesError != nil {
		return nil, m.IdentitiesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []database.IdentitySummary
	for identity, list := range m.embeddings {
		if len(list) == 0 {
			continue
		}
		summary := database.IdentitySummary{Identity: identity, Count: len(list)}
		for _, emb := range list {
			if emb.CreatedAt.After(summary.LastEnrolled) {
				summary.LastEnrolled = emb.CreatedAt
			}
		}
		result = append(result, summary)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Identity < result[j].Identity })
	return result, nil
}

// Add appends a sample
func (m *MockEmbeddingStore) Add(ctx context.Context, emb database.EnrolledEmbedding) error {
	if m.AddError != nil {
		return m.AddError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	emb.ID = m.nextID
	m.embeddings[emb.Identity] = append(m.embeddings[emb.Identity], emb)
	return nil
}

// AddWithLimit appends a sample while the identity is below limit
func (m *MockEmbeddingStore) AddWithLimit(ctx context.Context, emb database.EnrolledEmbedding, limit int) (int, bool, error) {
	if m.AddError != nil {
		return 0, false, m.AddError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := len(m.embeddings[emb.Identity])
	if limit > 0 && count >= limit {
		return count, false, nil
	}
	m.nextID++
	emb.ID = m.nextID
	m.embeddings[emb.Identity] = append(m.embeddings[emb.Identity], emb)
	return count + 1, true, nil
}

// Clear removes an identity
func (m *MockEmbeddingStore) Clear(ctx context.Context, identity string) error {
	if m.ClearError != nil {
		return m.ClearError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.embeddings, identity)
	return nil
}

// ClearAll removes every identity
func (m *MockEmbeddingStore) ClearAll(ctx context.Context) error {
	if m.ClearAllError != nil {
		return m.ClearAllError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings = make(map[string][]database.EnrolledEmbedding)
	return nil
}

// MockLedgerStore is a mock implementation of database.LedgerStore
type MockLedgerStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*database.AttendanceSession
	records  map[string]*database.AttendanceRecord

	// Call counters
	UpsertCalls int

	// Error injection
	CreateSessionError     error
	GetSessionError        error
	ListSessionsError      error
	DeactivateSessionError error
	DeactivateExpiredError error
	UpsertError            error
	GetRecordError         error
	ListRecordsError       error
}

// NewMockLedgerStore creates a new mock ledger store
func NewMockLedgerStore() *MockLedgerStore {
	return &MockLedgerStore{
		sessions: make(map[uuid.UUID]*database.AttendanceSession),
		records:  make(map[string]*database.AttendanceRecord),
	}
}

// AddSession adds a session to the mock store
func (m *MockLedgerStore) AddSession(s database.AttendanceSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &s
}

// CreateSession stores a new session
func (m *MockLedgerStore) CreateSession(ctx context.Context, s *database.AttendanceSession) error {
	if m.CreateSessionError != nil {
		return m.CreateSessionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

// GetSession returns a session by ID
func (m *MockLedgerStore) GetSession(ctx context.Context, id uuid.UUID) (*database.AttendanceSession, error) {
	if m.GetSessionError != nil {
		return nil, m.GetSessionError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// ListSessions returns all sessions, newest first
func (m *MockLedgerStore) ListSessions(ctx context.Context) ([]database.AttendanceSession, error) {
	if m.ListSessionsError != nil {
		return nil, m.ListSessionsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]database.AttendanceSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.After(result[j].StartTime) })
	return result, nil
}

// DeactivateSession clears the active flag
func (m *MockLedgerStore) DeactivateSession(ctx context.Context, id uuid.UUID) error {
	if m.DeactivateSessionError != nil {
		return m.DeactivateSessionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return database.ErrNotFound
	}
	s.Active = false
	return nil
}

// DeactivateExpired deactivates sessions whose end time has passed
func (m *MockLedgerStore) DeactivateExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	if m.DeactivateExpiredError != nil {
		return nil, m.DeactivateExpiredError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, s := range m.sessions {
		if s.Expired(now) {
			s.Active = false
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

// UpsertRecord inserts or overwrites a record
func (m *MockLedgerStore) UpsertRecord(ctx context.Context, rec *database.AttendanceRecord) (*database.AttendanceRecord, error) {
	m.mu.Lock()
	m.UpsertCalls++
	m.mu.Unlock()

	if m.UpsertError != nil {
		return nil, m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.SessionKey()
	if existing, ok := m.records[key]; ok {
		existing.Status = rec.Status
		existing.Confidence = rec.Confidence
		existing.ImageRef = rec.ImageRef
		existing.Note = rec.Note
		existing.UpdatedAt = rec.UpdatedAt
		cp := *existing
		return &cp, nil
	}
	cp := *rec
	m.records[key] = &cp
	out := cp
	return &out, nil
}

// GetRecord returns a record by (session, identity)
func (m *MockLedgerStore) GetRecord(ctx context.Context, sessionID uuid.UUID, identity string) (*database.AttendanceRecord, error) {
	if m.GetRecordError != nil {
		return nil, m.GetRecordError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[database.RecordKey(sessionID, identity)]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

// ListRecords returns records of a session sorted by identity
func (m *MockLedgerStore) ListRecords(ctx context.Context, sessionID uuid.UUID) ([]database.AttendanceRecord, error) {
	if m.ListRecordsError != nil {
		return nil, m.ListRecordsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.AttendanceRecord
	for _, r := range m.records {
		if r.SessionID == sessionID {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Identity < result[j].Identity })
	return result, nil
}

// MockBackend is a mock implementation of database.Backend
type MockBackend struct {
	mu     sync.Mutex
	stores map[string]*MockEmbeddingStore
	LedgerMock   *MockLedgerStore

	EmbeddingsError error
	LedgerError     error
}

// NewMockBackend creates a new mock backend
func NewMockBackend() *MockBackend {
	return &MockBackend{
		stores: make(map[string]*MockEmbeddingStore),
		LedgerMock:   NewMockLedgerStore(),
	}
}

// Store returns the mock store of model, creating it if needed
func (m *MockBackend) Store(model string) *MockEmbeddingStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[model]
	if !ok {
		s = NewMockEmbeddingStore()
		m.stores[model] = s
	}
	return s
}

// Embeddings returns the store of model
func (m *MockBackend) Embeddings(model string) (database.EmbeddingStore, error) {
	if m.EmbeddingsError != nil {
		return nil, m.EmbeddingsError
	}
	return m.Store(model), nil
}

// Ledger returns the ledger store
func (m *MockBackend) Ledger() (database.LedgerStore, error) {
	if m.LedgerError != nil {
		return nil, m.LedgerError
	}
	return m.LedgerMock, nil
}

// Close is a no-op
func (m *MockBackend) Close() error {
	return nil
}

var _ database.EmbeddingStore = (*MockEmbeddingStore)(nil)
var _ database.LedgerStore = (*MockLedgerStore)(nil)
var _ database.Backend = (*MockBackend)(nil)
