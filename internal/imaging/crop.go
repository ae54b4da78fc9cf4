package imaging

import (
	"errors"
	"image"
	"math"

	"golang.org/x/image/draw"

	"vehicle-anpr/internal/domain/anpr"
)

var ErrEmptyCrop = errors.New("crop rectangle does not intersect the image")

// BoxRect converts a center-format box to pixel corners, rounding to the nearest pixel.
func BoxRect(box anpr.BoundingBox) image.Rectangle {
	x0 := box.CenterX - box.Width/2
	y0 := box.CenterY - box.Height/2
	return image.Rect(
		int(math.Round(x0)),
		int(math.Round(y0)),
		int(math.Round(x0+box.Width)),
		int(math.Round(y0+box.Height)),
	)
}

// Crop copies the box region of src into a new RGBA image anchored at (0,0).
// The box is neither tightened nor padded; parts outside src are clipped away,
// so the result can be smaller than the box.
func Crop(src image.Image, box anpr.BoundingBox) (*image.RGBA, error) {
	if !box.Valid() {
		return nil, ErrEmptyCrop
	}
	r := BoxRect(box).Intersect(src.Bounds())
	if r.Empty() {
		return nil, ErrEmptyCrop
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst, nil
}
