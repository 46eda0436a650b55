package face

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// DefaultCropSize is the edge length of the square crop sent to the cross-validation model.
const DefaultCropSize = 150

// Crop cuts the face region out of the frame and renders it into a size×size JPEG.
// The region is stretched to the square; the cross-validation model expects fixed input.
func Crop(ictx ImageContext, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultCropSize
	}
	if len(ictx.Image) == 0 {
		return nil, fmt.Errorf("%w: no image data", ErrInvalidBBox)
	}

	img, _, err := image.Decode(bytes.NewReader(ictx.Image))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	bbox := ictx.BBox
	if ictx.Relative {
		bbox = RelativeToPixel(bbox, bounds.Dx(), bounds.Dy())
		if len(bbox) == 4 {
			bbox = []float64{
				bbox[0] + float64(bounds.Min.X), bbox[1] + float64(bounds.Min.Y),
				bbox[2] + float64(bounds.Min.X), bbox[3] + float64(bounds.Min.Y),
			}
		}
	}

	rect, err := PixelRect(bbox, bounds)
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, rect, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
