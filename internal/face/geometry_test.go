package face

import (
	"errors"
	"image"
	"math"
	"testing"
)

func TestComputeIoU(t *testing.T) {
	tests := []struct {
		name     string
		bbox1    []float64
		bbox2    []float64
		expected float64
	}{
		{
			name:     "identical boxes",
			bbox1:    []float64{0, 0, 10, 10},
			bbox2:    []float64{0, 0, 10, 10},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			bbox1:    []float64{0, 0, 10, 10},
			bbox2:    []float64{20, 20, 30, 30},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			bbox1:    []float64{0, 0, 10, 10},
			bbox2:    []float64{5, 5, 15, 15},
			expected: 25.0 / 175.0, // intersection=25, union=100+100-25=175
		},
		{
			name:     "invalid bbox1",
			bbox1:    []float64{0, 0, 10},
			bbox2:    []float64{0, 0, 10, 10},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeIoU(tt.bbox1, tt.bbox2)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ComputeIoU(%v, %v) = %v, want %v", tt.bbox1, tt.bbox2, result, tt.expected)
			}
		})
	}
}

func TestRelativeToPixel(t *testing.T) {
	result := RelativeToPixel([]float64{0.1, 0.2, 0.5, 0.6}, 200, 100)
	expected := []float64{20, 20, 100, 60}
	for i := range expected {
		if math.Abs(result[i]-expected[i]) > 1e-9 {
			t.Errorf("RelativeToPixel()[%d] = %v, want %v", i, result[i], expected[i])
		}
	}

	invalid := []float64{0.1, 0.2}
	if got := RelativeToPixel(invalid, 200, 100); len(got) != 2 {
		t.Errorf("expected invalid bbox to be returned unchanged, got %v", got)
	}
}

func TestPixelRect(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 80)

	tests := []struct {
		name     string
		bbox     []float64
		expected image.Rectangle
		wantErr  bool
	}{
		{"inside", []float64{10, 10, 50, 40}, image.Rect(10, 10, 50, 40), false},
		{"fractional rounds outward", []float64{10.5, 10.5, 49.2, 39.1}, image.Rect(10, 10, 50, 40), false},
		{"clipped", []float64{-10, -10, 50, 200}, image.Rect(0, 0, 50, 80), false},
		{"outside", []float64{200, 200, 300, 300}, image.Rectangle{}, true},
		{"inverted", []float64{50, 50, 10, 10}, image.Rectangle{}, true},
		{"inverted x only", []float64{50, 10, 10, 50}, image.Rectangle{}, true},
		{"zero width", []float64{10, 10, 10, 50}, image.Rectangle{}, true},
		{"wrong length", []float64{1, 2, 3}, image.Rectangle{}, true},
		{"nan", []float64{math.NaN(), 0, 10, 10}, image.Rectangle{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rect, err := PixelRect(tt.bbox, bounds)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBBox) {
					t.Errorf("expected ErrInvalidBBox, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rect != tt.expected {
				t.Errorf("PixelRect() = %v, want %v", rect, tt.expected)
			}
		})
	}
}
