// Package vecmath provides the numeric primitives used to compare face embeddings.
// All functions are pure and deterministic for identical inputs.
package vecmath

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Distance returns the Euclidean distance between a and b.
// Vectors of different length are truncated to the shorter length before comparing;
// legacy or malformed embeddings are compared on their common prefix rather than rejected.
func Distance(a, b []float64) float64 {
	a, b = truncate(a, b)
	if len(a) == 0 {
		return 0
	}
	d := floats.Distance(Sanitize(a), Sanitize(b), 2)
	if math.IsNaN(d) {
		return math.Inf(1)
	}
	return d
}

// CosineSimilarity returns dot(a,b) / (|a|*|b|).
// Both vectors are scaled to unit length before the dot product so large
// magnitudes cannot overflow. Returns 0 if either vector has zero norm or the
// result is not finite, so the result is never NaN or Inf.
func CosineSimilarity(a, b []float64) float64 {
	a, b = truncate(a, b)
	if len(a) == 0 {
		return 0
	}

	ua, ub := Normalize(a), Normalize(b)
	similarity := floats.Dot(ua, ub)
	if math.IsNaN(similarity) || math.IsInf(similarity, 0) {
		return 0
	}
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return similarity
}

// Sanitize returns a copy of v with every NaN or infinite component replaced by 0.
func Sanitize(v []float64) Vector {
	out := make(Vector, len(v))
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		out[i] = x
	}
	return out
}

// Normalize returns a unit-length copy of v. A zero vector is returned as a zero copy.
// The vector is first divided by its largest component so the norm cannot overflow.
func Normalize(v []float64) Vector {
	out := Sanitize(v)
	largest := 0.0
	for _, x := range out {
		largest = max(largest, math.Abs(x))
	}
	if largest == 0 {
		return out
	}
	for i := range out {
		out[i] /= largest
	}
	norm := floats.Norm(out, 2)
	for i := range out {
		out[i] /= norm
	}
	return out
}

// truncate cuts both slices to the length of the shorter one.
func truncate(a, b []float64) ([]float64, []float64) {
	n := min(len(a), len(b))
	return a[:n], b[:n]
}

// ToFloat32 converts v for storage backends that keep float32 columns.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// FromFloat32 converts a float32 vector read from storage.
func FromFloat32(v []float32) Vector {
	out := make(Vector, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
