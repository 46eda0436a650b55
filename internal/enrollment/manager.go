// Package enrollment adds labeled embeddings to the store under the per-identity capacity policy.
package enrollment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/face"
	"github.com/kozaktomas/rollcall/internal/keylock"
	"github.com/kozaktomas/rollcall/internal/matching"
	"github.com/kozaktomas/rollcall/internal/vecmath"
)

const (
	// DefaultMaxPerIdentity is the number of samples an identity may hold.
	DefaultMaxPerIdentity = 10

	// DefaultScore is used when a request carries no quality score.
	DefaultScore = 1.0
)

// Config holds the enrollment policy.
type Config struct {
	MaxPerIdentity int
	// DuplicateThreshold is the distance under which a sample of another identity is reported.
	// Zero disables the near-duplicate check.
	DuplicateThreshold float64
}

// DefaultConfig returns the default policy with the near-duplicate check on.
func DefaultConfig() Config {
	return Config{
		MaxPerIdentity:     DefaultMaxPerIdentity,
		DuplicateThreshold: matching.DefaultThreshold,
	}
}

// Request is a single enrollment attempt.
type Request struct {
	Identity string             `json:"identity"`
	Vector   vecmath.Vector     `json:"vector"`
	ImageRef string             `json:"image_ref,omitempty"`
	Score    *float64           `json:"score,omitempty"`
	Image    *face.ImageContext `json:"image,omitempty"`
}

// Result describes a successful enrollment.
type Result struct {
	Embedding database.EnrolledEmbedding `json:"embedding"`
	Count     int                        `json:"count"`
	Remaining int                        `json:"remaining"`

	// NearestOther is set when a sample of another identity is closer than the duplicate threshold.
	NearestOther *database.Neighbor `json:"nearest_other,omitempty"`

	CrossValidationStored bool   `json:"cross_validation_stored"`
	CrossValidationError  string `json:"cross_validation_error,omitempty"`
	CrossValidationErr    error  `json:"-"`
}

// Manager enrolls embeddings. It is safe for concurrent use; writes are
// serialized per identity.
type Manager struct {
	store      database.EmbeddingStore
	cross      database.EmbeddingStore
	crossModel string
	embedder   matching.CrossEmbedder
	cfg        Config
	logger     *slog.Logger

	locks *keylock.Map
	// resetMu excludes ClearAll from in-flight enrollments.
	resetMu sync.RWMutex

	index      *database.HNSWIndex
	indexMu    sync.Mutex
	indexBuilt bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithCrossValidation stores a cross-validation embedding for every enrollment carrying an image.
func WithCrossValidation(store database.EmbeddingStore, embedder matching.CrossEmbedder, model string) Option {
	return func(m *Manager) {
		m.cross = store
		m.embedder = embedder
		m.crossModel = model
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates an enrollment manager over store.
func NewManager(store database.EmbeddingStore, cfg Config, opts ...Option) *Manager {
	if cfg.MaxPerIdentity <= 0 {
		cfg.MaxPerIdentity = DefaultMaxPerIdentity
	}
	m := &Manager{
		store:      store,
		crossModel: database.ModelCrossValidation,
		cfg:        cfg,
		logger:     slog.Default(),
		locks:      keylock.New(),
	}
	if cfg.DuplicateThreshold > 0 {
		m.index = database.NewHNSWIndex()
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxPerIdentity returns the capacity limit.
func (m *Manager) MaxPerIdentity() int {
	return m.cfg.MaxPerIdentity
}

// Enroll validates and stores a sample. The identity's lock serializes enrollments
// in this process; the store's AddWithLimit keeps the limit across processes
// sharing the same store.
func (m *Manager) Enroll(ctx context.Context, req Request) (*Result, error) {
	score := DefaultScore
	if req.Score != nil {
		score = *req.Score
	}
	identity := face.NormalizeLabel(req.Identity)

	emb, err := database.NewEnrolledEmbedding(identity, database.ModelPrimary, req.Vector, req.ImageRef, score)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnrollment, err)
	}

	m.resetMu.RLock()
	defer m.resetMu.RUnlock()

	unlock := m.locks.Lock(identity)
	defer unlock()

	count, err := m.store.Count(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("count samples of %q: %w", identity, err)
	}
	if count >= m.cfg.MaxPerIdentity {
		return nil, m.rejectFull(identity, count)
	}

	nearest := m.nearestOther(ctx, emb)

	count, added, err := m.store.AddWithLimit(ctx, emb, m.cfg.MaxPerIdentity)
	if err != nil {
		return nil, fmt.Errorf("add sample of %q: %w", identity, err)
	}
	if !added {
		return nil, m.rejectFull(identity, count)
	}
	if m.index != nil {
		m.index.Add(emb)
	}

	result := &Result{
		Embedding:    emb,
		Count:        count,
		Remaining:    max(m.cfg.MaxPerIdentity-count, 0),
		NearestOther: nearest,
	}

	if nearest != nil {
		m.logger.Warn("enrolled sample is close to another identity",
			"identity", identity,
			"other", nearest.Identity,
			"distance", nearest.Distance,
		)
	}

	if req.Image != nil && !req.Image.Empty() && m.cross != nil && m.embedder != nil {
		if err := m.enrollCross(ctx, identity, *req.Image, req.ImageRef, score); err != nil {
			result.CrossValidationErr = err
			result.CrossValidationError = err.Error()
			m.logger.Warn("cross-validation enrollment failed", "identity", identity, "error", err)
		} else {
			result.CrossValidationStored = true
		}
	}

	m.logger.Info("enrolled sample",
		"identity", identity,
		"count", result.Count,
		"limit", m.cfg.MaxPerIdentity,
	)
	return result, nil
}

func (m *Manager) rejectFull(identity string, count int) error {
	m.logger.Info("enrollment rejected, identity full",
		"identity", identity,
		"count", count,
		"limit", m.cfg.MaxPerIdentity,
	)
	return &CapacityError{Identity: identity, Limit: m.cfg.MaxPerIdentity, Count: count}
}

// enrollCross computes and stores the cross-validation embedding of the request image.
func (m *Manager) enrollCross(ctx context.Context, identity string, region face.ImageContext, imageRef string, score float64) error {
	vector, err := m.embedder.Embed(ctx, region)
	if err != nil {
		return fmt.Errorf("%w: %w", matching.ErrCrossValidation, err)
	}
	emb, err := database.NewEnrolledEmbedding(identity, m.crossModel, vector, imageRef, score)
	if err != nil {
		return fmt.Errorf("%w: %w", matching.ErrCrossValidation, err)
	}
	if err := m.cross.Add(ctx, emb); err != nil {
		return fmt.Errorf("add cross-validation sample: %w", err)
	}
	return nil
}

// nearestOther returns the closest sample of another identity within the duplicate threshold.
func (m *Manager) nearestOther(ctx context.Context, emb database.EnrolledEmbedding) *database.Neighbor {
	if m.index == nil {
		return nil
	}
	if err := m.ensureIndex(ctx); err != nil {
		m.logger.Warn("near-duplicate check skipped", "error", err)
		return nil
	}

	n := m.index.NearestOther(emb.Vector, emb.Identity)
	if n == nil || n.Distance >= m.cfg.DuplicateThreshold {
		return nil
	}
	return n
}

// ensureIndex builds the HNSW index from the store on first use.
func (m *Manager) ensureIndex(ctx context.Context) error {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()

	if m.indexBuilt {
		return nil
	}
	groups, err := m.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load embeddings for index: %w", err)
	}
	m.index.Build(groups)
	m.indexBuilt = true
	m.logger.Debug("built near-duplicate index", "embeddings", m.index.Count())
	return nil
}

// Clear removes every sample of identity from the primary and cross-validation stores.
func (m *Manager) Clear(ctx context.Context, identity string) error {
	identity = face.NormalizeLabel(identity)
	if identity == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidEnrollment)
	}

	m.resetMu.RLock()
	defer m.resetMu.RUnlock()

	unlock := m.locks.Lock(identity)
	defer unlock()

	if err := m.store.Clear(ctx, identity); err != nil {
		return fmt.Errorf("clear %q: %w", identity, err)
	}
	if m.cross != nil {
		if err := m.cross.Clear(ctx, identity); err != nil {
			return fmt.Errorf("clear cross-validation samples of %q: %w", identity, err)
		}
	}
	if m.index != nil {
		m.index.RemoveIdentity(identity)
	}

	m.logger.Info("cleared identity", "identity", identity)
	return nil
}

// ClearAll removes every sample of every identity. It waits for in-flight enrollments.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.resetMu.Lock()
	defer m.resetMu.Unlock()

	if err := m.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear all: %w", err)
	}
	if m.cross != nil {
		if err := m.cross.ClearAll(ctx); err != nil {
			return fmt.Errorf("clear all cross-validation samples: %w", err)
		}
	}
	if m.index != nil {
		m.indexMu.Lock()
		m.index.Build(nil)
		m.indexBuilt = true
		m.indexMu.Unlock()
	}

	m.logger.Info("cleared all identities")
	return nil
}
