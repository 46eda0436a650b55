package vecmath

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Vector is an embedding as produced by an external face model.
//
// Its JSON decoding is lenient: numbers decode as-is and any other element
// (string, bool, null, object, array) decodes as 0. Embeddings coming out of
// browser pipelines occasionally carry nulls for NaN values.
type Vector []float64

// UnmarshalJSON implements json.Unmarshaler.
func (v *Vector) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = nil
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("embedding must be an array: %w", err)
	}

	out := make(Vector, len(raw))
	for i, elem := range raw {
		var f float64
		if err := json.Unmarshal(elem, &f); err != nil {
			continue
		}
		out[i] = f
	}
	*v = out
	return nil
}

// Dim returns the number of components.
func (v Vector) Dim() int {
	return len(v)
}
