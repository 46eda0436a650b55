package database

import (
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/rollcall/internal/vecmath"
)

// Neighbor is a search hit of the HNSW index.
type Neighbor struct {
	Identity    string  `json:"identity"`
	EmbeddingID int64   `json:"embedding_id"`
	Distance    float64 `json:"distance"`
}

// HNSWIndex wraps an in-memory HNSW graph over primary embeddings.
// It only answers "which other identity is closest" questions and never decides a match.
// Only vectors of the index dimension (set by the first vector added) are indexed.
type HNSWIndex struct {
	graph   *hnsw.Graph[int64]
	entries map[int64]EnrolledEmbedding // Maps HNSW node key to embedding
	dim     int
	nextKey int64
	mu      sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		entries: make(map[int64]EnrolledEmbedding),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build rebuilds the index from a store snapshot.
func (h *HNSWIndex) Build(groups []IdentityEmbeddings) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.reset()
	for _, group := range groups {
		for _, emb := range group.Embeddings {
			h.addLocked(emb)
		}
	}
}

// Add adds a single embedding to the index.
func (h *HNSWIndex) Add(emb EnrolledEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addLocked(emb)
}

// RemoveIdentity drops every embedding of identity by rebuilding the graph
// from the remaining entries.
func (h *HNSWIndex) RemoveIdentity(identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	keys := make([]int64, 0, len(h.entries))
	for key, emb := range h.entries {
		if emb.Identity != identity {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	remaining := make([]EnrolledEmbedding, len(keys))
	for i, key := range keys {
		remaining[i] = h.entries[key]
	}

	h.reset()
	for _, emb := range remaining {
		h.addLocked(emb)
	}
}

// NearestOther returns the closest indexed embedding that does not belong to identity,
// or nil when the index holds no comparable vector of another identity.
func (h *HNSWIndex) NearestOther(query []float64, identity string) *Neighbor {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || h.graph.Len() == 0 || len(query) != h.dim {
		return nil
	}

	// Request extra candidates so samples of the query identity can be skipped.
	k := min(h.graph.Len(), HNSWMaxNeighbors*HNSWSearchMultiplier)
	nodes := h.graph.Search(vecmath.ToFloat32(vecmath.Sanitize(query)), k)

	var best *Neighbor
	for _, n := range nodes {
		emb, ok := h.entries[n.Key]
		if !ok || emb.Identity == identity {
			continue
		}
		d := vecmath.Distance(query, emb.Vector)
		if best == nil || d < best.Distance {
			best = &Neighbor{Identity: emb.Identity, EmbeddingID: emb.ID, Distance: d}
		}
	}
	return best
}

// Count returns the number of indexed embeddings.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (h *HNSWIndex) reset() {
	h.graph = nil
	h.entries = make(map[int64]EnrolledEmbedding)
	h.dim = 0
}

func (h *HNSWIndex) addLocked(emb EnrolledEmbedding) {
	if len(emb.Vector) == 0 {
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
		h.dim = len(emb.Vector)
	}
	if len(emb.Vector) != h.dim {
		return
	}

	h.nextKey++
	h.graph.Add(hnsw.MakeNode(h.nextKey, vecmath.ToFloat32(emb.Vector)))
	h.entries[h.nextKey] = emb
}
