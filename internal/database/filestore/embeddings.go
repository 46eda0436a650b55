package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/kozaktomas/rollcall/internal/database"
)

// embeddingDocument is the on-disk layout of one model's embeddings.
type embeddingDocument struct {
	Version    int                                     `json:"version"`
	Model      string                                  `json:"model"`
	NextID     int64                                   `json:"next_id"`
	Identities map[string][]database.EnrolledEmbedding `json:"identities"`
}

func emptyEmbeddingDocument(model string) embeddingDocument {
	return embeddingDocument{
		Version:    CurrentVersion,
		Model:      model,
		Identities: make(map[string][]database.EnrolledEmbedding),
	}
}

// clone copies the identity map and its lists. Embeddings are treated as immutable.
func (d embeddingDocument) clone() embeddingDocument {
	out := d
	out.Identities = make(map[string][]database.EnrolledEmbedding, len(d.Identities))
	for identity, list := range d.Identities {
		out.Identities[identity] = slices.Clone(list)
	}
	return out
}

// EmbeddingStore implements database.EmbeddingStore on a JSON document.
type EmbeddingStore struct {
	file  *document
	model string
	doc   embeddingDocument
	mu    sync.Mutex
}

// NewEmbeddingStore loads (or starts) the document at path.
func NewEmbeddingStore(path, model string) (*EmbeddingStore, error) {
	s := &EmbeddingStore{
		file:  newDocument(path),
		model: model,
		doc:   emptyEmbeddingDocument(model),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return nil, database.NewStoreError("load", "", err)
	}
	return s, nil
}

// refresh reloads the document when another process replaced it. Must be called with mu held.
func (s *EmbeddingStore) refresh() error {
	stale, err := s.file.stale()
	if err != nil || !stale {
		return err
	}

	data, info, err := s.file.read()
	if err != nil {
		return err
	}
	doc := emptyEmbeddingDocument(s.model)
	if data != nil {
		if doc, err = s.decode(data); err != nil {
			return err
		}
	}
	s.doc = doc
	s.file.info = info
	return nil
}

// decode parses a document of any known version and upgrades it in memory.
// The upgraded form is written with the next mutation.
func (s *EmbeddingStore) decode(data []byte) (embeddingDocument, error) {
	var fields map[string]json.RawMessage
	if err := s.file.decode(data, &fields); err != nil {
		return embeddingDocument{}, err
	}

	doc := embeddingDocument{}
	_, hasVersion := fields["version"]
	_, hasIdentities := fields["identities"]
	if hasVersion || hasIdentities || len(fields) == 0 {
		if err := s.file.decode(data, &doc); err != nil {
			return embeddingDocument{}, err
		}
	} else if err := s.file.decode(data, &doc.Identities); err != nil {
		// v0 files written as a bare identity -> samples map
		return embeddingDocument{}, err
	}

	if doc.Identities == nil {
		doc.Identities = make(map[string][]database.EnrolledEmbedding)
	}
	if doc.Version > CurrentVersion {
		return embeddingDocument{}, fmt.Errorf("unsupported embeddings version %d", doc.Version)
	}
	if doc.Model != "" && doc.Model != s.model {
		return embeddingDocument{}, fmt.Errorf("document holds model %q, expected %q", doc.Model, s.model)
	}
	if doc.Version < CurrentVersion {
		s.migrate(&doc)
	}
	return doc, nil
}

// migrate upgrades a v0 document: no IDs, no model name, possibly no identity
// field on samples. IDs are assigned in label order so every reader agrees on them.
func (s *EmbeddingStore) migrate(doc *embeddingDocument) {
	doc.Model = s.model
	for _, list := range doc.Identities {
		for _, emb := range list {
			doc.NextID = max(doc.NextID, emb.ID)
		}
	}
	for _, identity := range slices.Sorted(maps.Keys(doc.Identities)) {
		list := doc.Identities[identity]
		for i := range list {
			if list[i].ID == 0 {
				doc.NextID++
				list[i].ID = doc.NextID
			}
			if list[i].Model == "" {
				list[i].Model = s.model
			}
			if list[i].Identity == "" {
				list[i].Identity = identity
			}
		}
	}
	doc.Version = CurrentVersion
}

// update applies fn to a fresh copy of the document while holding the
// cross-process lock, then persists it. The in-memory document only changes
// once the write succeeded.
func (s *EmbeddingStore) update(op, identity string, fn func(doc *embeddingDocument) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.file.lock()
	if err != nil {
		return database.NewStoreError(op, identity, err)
	}
	defer unlock()

	if err := s.refresh(); err != nil {
		return database.NewStoreError(op, identity, err)
	}

	doc := s.doc.clone()
	if !fn(&doc) {
		return nil
	}
	if err := s.file.write(doc); err != nil {
		return database.NewStoreError(op, identity, err)
	}
	s.doc = doc
	return nil
}

// current returns the up-to-date document. Must be called with mu held.
func (s *EmbeddingStore) current(op, identity string) (*embeddingDocument, error) {
	if err := s.refresh(); err != nil {
		return nil, database.NewStoreError(op, identity, err)
	}
	return &s.doc, nil
}

// Get retrieves all samples of an identity, returns nil if the identity is unknown.
func (s *EmbeddingStore) Get(_ context.Context, identity string) ([]database.EnrolledEmbedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.current("get", identity)
	if err != nil {
		return nil, err
	}
	list, ok := doc.Identities[identity]
	if !ok || len(list) == 0 {
		return nil, nil
	}
	return cloneEmbeddings(list), nil
}

// GetAll returns a snapshot of every identity sorted by label.
func (s *EmbeddingStore) GetAll(_ context.Context) ([]database.IdentityEmbeddings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.current("get all", "")
	if err != nil {
		return nil, err
	}
	identities := slices.Sorted(maps.Keys(doc.Identities))
	result := make([]database.IdentityEmbeddings, 0, len(identities))
	for _, identity := range identities {
		list := doc.Identities[identity]
		if len(list) == 0 {
			continue
		}
		result = append(result, database.IdentityEmbeddings{
			Identity:   identity,
			Embeddings: cloneEmbeddings(list),
		})
	}
	return result, nil
}

// Count returns the number of samples of an identity.
func (s *EmbeddingStore) Count(_ context.Context, identity string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.current("count", identity)
	if err != nil {
		return 0, err
	}
	return len(doc.Identities[identity]), nil
}

// Identities lists enrolled identities with counts.
func (s *EmbeddingStore) Identities(_ context.Context) ([]database.IdentitySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.current("list identities", "")
	if err != nil {
		return nil, err
	}
	result := make([]database.IdentitySummary, 0, len(doc.Identities))
	for identity, list := range doc.Identities {
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

// Add appends a sample and persists the document.
func (s *EmbeddingStore) Add(_ context.Context, emb database.EnrolledEmbedding) error {
	return s.update("add", emb.Identity, func(doc *embeddingDocument) bool {
		s.appendTo(doc, emb)
		return true
	})
}

// AddWithLimit appends a sample unless the identity already holds limit samples.
// The count and the write happen under the same cross-process lock.
func (s *EmbeddingStore) AddWithLimit(_ context.Context, emb database.EnrolledEmbedding, limit int) (int, bool, error) {
	count, added := 0, false
	err := s.update("add", emb.Identity, func(doc *embeddingDocument) bool {
		count = len(doc.Identities[emb.Identity])
		if limit > 0 && count >= limit {
			return false
		}
		s.appendTo(doc, emb)
		count++
		added = true
		return true
	})
	if err != nil {
		return 0, false, err
	}
	return count, added, nil
}

func (s *EmbeddingStore) appendTo(doc *embeddingDocument, emb database.EnrolledEmbedding) {
	doc.NextID++
	emb.ID = doc.NextID
	emb.Model = s.model
	emb.Vector = slices.Clone(emb.Vector)
	doc.Identities[emb.Identity] = append(doc.Identities[emb.Identity], emb)
}

// Clear removes every sample of an identity.
func (s *EmbeddingStore) Clear(_ context.Context, identity string) error {
	return s.update("clear", identity, func(doc *embeddingDocument) bool {
		if _, ok := doc.Identities[identity]; !ok {
			return false
		}
		delete(doc.Identities, identity)
		return true
	})
}

// ClearAll removes every identity.
func (s *EmbeddingStore) ClearAll(_ context.Context) error {
	return s.update("clear all", "", func(doc *embeddingDocument) bool {
		doc.Identities = make(map[string][]database.EnrolledEmbedding)
		return true
	})
}

func cloneEmbeddings(list []database.EnrolledEmbedding) []database.EnrolledEmbedding {
	out := make([]database.EnrolledEmbedding, len(list))
	for i, emb := range list {
		emb.Vector = slices.Clone(emb.Vector)
		out[i] = emb
	}
	return out
}
