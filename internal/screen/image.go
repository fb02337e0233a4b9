package screen

import (
	"image"
	"image/draw"
	"sync/atomic"

	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
)

// ImageReader serves pixels from an in-memory image. It backs offline probing and
// stands in for the display wherever a deterministic surface is needed.
type ImageReader struct {
	img    image.Image
	closed atomic.Bool
}

// FromImage wraps img as a RegionReader.
func FromImage(img image.Image) *ImageReader {
	return &ImageReader{img: img}
}

// ReadPixel implements Reader.
func (r *ImageReader) ReadPixel(x, y int) (pixel.Color, error) {
	if r.closed.Load() {
		return pixel.Color{}, ErrResourceLost
	}
	if !image.Pt(x, y).In(r.img.Bounds()) {
		return pixel.Color{}, ErrUnreadable
	}
	cr, cg, cb, _ := r.img.At(x, y).RGBA()
	return pixel.RGB(uint8(cr>>8), uint8(cg>>8), uint8(cb>>8)), nil
}

// ReadRegion implements RegionReader.
func (r *ImageReader) ReadRegion(rect image.Rectangle) (*image.RGBA, error) {
	if r.closed.Load() {
		return nil, ErrResourceLost
	}
	rect = rect.Intersect(r.img.Bounds())
	if rect.Empty() {
		return nil, ErrUnreadable
	}
	out := image.NewRGBA(rect)
	draw.Draw(out, rect, r.img, rect.Min, draw.Src)
	return out, nil
}

// Bounds implements Reader.
func (r *ImageReader) Bounds() image.Rectangle { return r.img.Bounds() }

// Close implements Reader. Reads after Close report ErrResourceLost.
func (r *ImageReader) Close() error {
	r.closed.Store(true)
	return nil
}
