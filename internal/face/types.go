// Package face holds the face-region helpers shared by the matching and enrollment flows:
// bounding box geometry, crop rendering for the cross-validation model and label normalization.
package face

import "errors"

// ErrInvalidBBox is returned when a bounding box is malformed or does not intersect the image.
var ErrInvalidBBox = errors.New("invalid bounding box")

// ImageContext is the face region a cross-validation embedding is computed from.
type ImageContext struct {
	// Image is the encoded frame (JPEG, PNG or BMP). JSON carries it base64 encoded.
	Image []byte `json:"image"`
	// BBox is [x1, y1, x2, y2] in pixels, or in 0-1 coordinates when Relative is set.
	BBox     []float64 `json:"bbox"`
	Relative bool      `json:"relative,omitempty"`
}

// Empty reports whether the context carries no usable image.
func (c *ImageContext) Empty() bool {
	return c == nil || len(c.Image) == 0
}
