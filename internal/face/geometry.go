package face

import (
	"fmt"
	"image"
	"math"
)

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// RelativeToPixel converts a relative (0-1) bbox to pixel coordinates.
func RelativeToPixel(bbox []float64, width, height int) []float64 {
	if len(bbox) != 4 || width <= 0 || height <= 0 {
		return bbox
	}
	return []float64{
		bbox[0] * float64(width),
		bbox[1] * float64(height),
		bbox[2] * float64(width),
		bbox[3] * float64(height),
	}
}

// PixelRect converts a pixel bbox into an integer rectangle clipped to bounds.
// Returns ErrInvalidBBox if the box is malformed or the clipped region is empty.
func PixelRect(bbox []float64, bounds image.Rectangle) (image.Rectangle, error) {
	if len(bbox) != 4 {
		return image.Rectangle{}, fmt.Errorf("%w: expected 4 coordinates, got %d", ErrInvalidBBox, len(bbox))
	}
	for _, v := range bbox {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return image.Rectangle{}, fmt.Errorf("%w: non-finite coordinate", ErrInvalidBBox)
		}
	}

	// image.Rect would swap inverted corners into a valid rectangle.
	if bbox[2] <= bbox[0] || bbox[3] <= bbox[1] {
		return image.Rectangle{}, fmt.Errorf("%w: %v has no area", ErrInvalidBBox, bbox)
	}

	rect := image.Rect(
		int(math.Floor(bbox[0])), int(math.Floor(bbox[1])),
		int(math.Ceil(bbox[2])), int(math.Ceil(bbox[3])),
	).Intersect(bounds)

	if rect.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: %v outside image %v", ErrInvalidBBox, bbox, bounds)
	}
	return rect, nil
}
