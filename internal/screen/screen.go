// Package screen reads pixel colors from the live display.
package screen

import (
	"errors"
	"image"

	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
)

var (
	// ErrUnreadable marks a single coordinate that could not be read. Callers treat
	// it as an absent sample.
	ErrUnreadable = errors.New("screen: pixel unreadable")
	// ErrResourceLost marks a reader whose underlying handle is no longer valid.
	ErrResourceLost = errors.New("screen: display handle lost")
)

// Reader reads single pixels in absolute screen coordinates.
// A Reader is owned by one goroutine at a time.
type Reader interface {
	ReadPixel(x, y int) (pixel.Color, error)
	Bounds() image.Rectangle
	Close() error
}

// RegionReader is implemented by readers that can grab a rectangle in one call.
type RegionReader interface {
	Reader
	ReadRegion(r image.Rectangle) (*image.RGBA, error)
}

// Opener acquires a fresh Reader. The engine calls it on start and on recovery.
type Opener func() (Reader, error)

// Center returns the midpoint of b.
func Center(b image.Rectangle) image.Point {
	return image.Pt(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2)
}
