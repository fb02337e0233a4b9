//go:build !windows

package screen

import (
	"fmt"
	"image"
	"sync/atomic"

	"github.com/kbinani/screenshot"

	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
)

// captureReader reads the primary display through kbinani/screenshot.
type captureReader struct {
	bounds image.Rectangle
	closed atomic.Bool
}

// Open acquires the primary display.
func Open() (Reader, error) {
	if screenshot.NumActiveDisplays() < 1 {
		return nil, fmt.Errorf("no active display: %w", ErrResourceLost)
	}
	b := screenshot.GetDisplayBounds(0)
	if b.Empty() {
		return nil, fmt.Errorf("primary display has empty bounds: %w", ErrResourceLost)
	}
	return &captureReader{bounds: b}, nil
}

func (c *captureReader) ReadPixel(x, y int) (pixel.Color, error) {
	img, err := c.ReadRegion(image.Rect(x, y, x+1, y+1))
	if err != nil {
		return pixel.Color{}, err
	}
	p := img.PixOffset(x, y)
	return pixel.RGB(img.Pix[p], img.Pix[p+1], img.Pix[p+2]), nil
}

func (c *captureReader) ReadRegion(r image.Rectangle) (*image.RGBA, error) {
	if c.closed.Load() || screenshot.NumActiveDisplays() < 1 {
		return nil, ErrResourceLost
	}
	r = r.Intersect(c.bounds)
	if r.Empty() {
		return nil, ErrUnreadable
	}
	img, err := screenshot.CaptureRect(r)
	if err != nil {
		return nil, fmt.Errorf("capture %v: %v: %w", r, err, ErrUnreadable)
	}
	return img, nil
}

func (c *captureReader) Bounds() image.Rectangle { return c.bounds }

func (c *captureReader) Close() error {
	c.closed.Store(true)
	return nil
}
