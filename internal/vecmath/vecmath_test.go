package vecmath

import (
	"encoding/json"
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		expected float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 0},
		{"unit axes", []float64{1, 0}, []float64{0, 1}, math.Sqrt2},
		{"3-4-5", []float64{0, 0}, []float64{3, 4}, 5},
		{"mismatched length truncates", []float64{0, 0, 100}, []float64{3, 4}, 5},
		{"empty", []float64{}, []float64{1, 2}, 0},
		{"nan treated as zero", []float64{math.NaN(), 0}, []float64{3, 4}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Distance(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("Distance(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestDistance_AllZerosVsPointNine128(t *testing.T) {
	zeros := make([]float64, 128)
	probe := make([]float64, 128)
	for i := range probe {
		probe[i] = 0.9
	}

	expected := 0.9 * math.Sqrt(128)
	if d := Distance(zeros, probe); math.Abs(d-expected) > 1e-9 {
		t.Errorf("Distance() = %v, want %v", d, expected)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		expected float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"scaled", []float64{1, 1}, []float64{5, 5}, 1},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"both zero", []float64{0, 0}, []float64{0, 0}, 0},
		{"empty", nil, nil, 0},
		{"mismatched length truncates", []float64{1, 0, 9}, []float64{1, 0}, 1},
		{"large magnitude", []float64{1e200, 1e200}, []float64{1e200, 1e200}, 1},
		{"large magnitude opposite", []float64{1e200, 1e200}, []float64{-1e200, -1e200}, -1},
		{"max float", []float64{math.MaxFloat64, math.MaxFloat64}, []float64{1, 1}, 1},
		{"tiny magnitude", []float64{1e-300, 0}, []float64{5e-324, 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineSimilarity(tt.a, tt.b)
			if math.IsNaN(result) || math.IsInf(result, 0) {
				t.Fatalf("CosineSimilarity(%v, %v) = %v, want finite", tt.a, tt.b, result)
			}
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestDeterminism(t *testing.T) {
	a := []float64{0.12, -0.4, 0.33, 0.91}
	b := []float64{0.1, -0.38, 0.35, 0.88}

	d1, s1 := Distance(a, b), CosineSimilarity(a, b)
	for range 100 {
		if d := Distance(a, b); d != d1 {
			t.Fatalf("Distance not deterministic: %v != %v", d, d1)
		}
		if s := CosineSimilarity(a, b); s != s1 {
			t.Fatalf("CosineSimilarity not deterministic: %v != %v", s, s1)
		}
	}
}

func TestSanitize(t *testing.T) {
	in := []float64{1, math.NaN(), math.Inf(1), math.Inf(-1), -2}
	out := Sanitize(in)

	expected := []float64{1, 0, 0, 0, -2}
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("Sanitize()[%d] = %v, want %v", i, out[i], expected[i])
		}
	}
	if !math.IsNaN(in[1]) {
		t.Error("Sanitize must not modify its input")
	}
}

func TestNormalize(t *testing.T) {
	out := Normalize([]float64{3, 4})
	if math.Abs(out[0]-0.6) > 1e-9 || math.Abs(out[1]-0.8) > 1e-9 {
		t.Errorf("Normalize([3 4]) = %v, want [0.6 0.8]", out)
	}

	zero := Normalize([]float64{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("Normalize(zero) = %v, want zeros", zero)
	}
	huge := Normalize([]float64{math.MaxFloat64, 0, math.MaxFloat64})
	if math.Abs(huge[0]-math.Sqrt2/2) > 1e-9 || huge[1] != 0 || math.Abs(huge[2]-math.Sqrt2/2) > 1e-9 {
		t.Errorf("Normalize(max float) = %v, want unit length", huge)
	}
}

func TestFloat32RoundTrip(t *testing.T) {
	in := []float64{0.5, -0.25, 1}
	out := FromFloat32(ToFloat32(in))
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("FromFloat32(ToFloat32())[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestVector_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []float64
		wantErr  bool
	}{
		{"numbers", `[0.1, 2, -3.5]`, []float64{0.1, 2, -3.5}, false},
		{"non-numeric become zero", `[1, "x", null, true, {"a":1}, [2]]`, []float64{1, 0, 0, 0, 0, 0}, false},
		{"empty array", `[]`, []float64{}, false},
		{"not an array", `{"a": 1}`, nil, true},
		{"string", `"abc"`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Vector
			err := json.Unmarshal([]byte(tt.input), &v)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %s", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(v) != len(tt.expected) {
				t.Fatalf("len = %d, want %d", len(v), len(tt.expected))
			}
			for i := range tt.expected {
				if v[i] != tt.expected[i] {
					t.Errorf("v[%d] = %v, want %v", i, v[i], tt.expected[i])
				}
			}
		})
	}
}

func TestVector_UnmarshalJSONNull(t *testing.T) {
	v := Vector{1, 2}
	if err := json.Unmarshal([]byte(`null`), &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil vector, got %v", v)
	}
}
