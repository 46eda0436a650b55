package matching

import (
	"sort"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/vecmath"
)

// Candidate is one identity scored against a probe.
type Candidate struct {
	Identity string  `json:"identity"`
	Distance float64 `json:"distance"` // mean of the TopK closest sample distances
	Samples  int     `json:"samples"`
	TopK     int     `json:"top_k"`
}

// TopK returns how many of n samples are averaged: max(1, min(3, n/2)).
// A single close outlier sample cannot outweigh several consistently close ones.
func TopK(n int) int {
	return max(1, min(maxTopK, n/2))
}

// Score computes the averaged distance of probe to one identity's samples.
// Returns ok=false when the identity holds no samples.
func Score(probe []float64, samples [][]float64) (distance float64, k int, ok bool) {
	if len(samples) == 0 {
		return 0, 0, false
	}

	distances := make([]float64, len(samples))
	for i, s := range samples {
		distances[i] = vecmath.Distance(probe, s)
	}
	sort.Float64s(distances)

	k = TopK(len(distances))
	var sum float64
	for _, d := range distances[:k] {
		sum += d
	}
	return sum / float64(k), k, true
}

// Rank scores every identity and returns candidates ordered by ascending distance.
// Ties keep the order of groups, which stores return sorted by identity.
func Rank(probe []float64, groups []database.IdentityEmbeddings) []Candidate {
	candidates := make([]Candidate, 0, len(groups))
	for _, g := range groups {
		d, k, ok := Score(probe, g.Vectors())
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			Identity: g.Identity,
			Distance: d,
			Samples:  len(g.Embeddings),
			TopK:     k,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	return candidates
}
