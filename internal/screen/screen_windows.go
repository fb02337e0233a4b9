//go:build windows

package screen

import (
	"fmt"
	"image"
	"sync/atomic"
	"syscall"

	"github.com/lxn/win"

	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
)

const clrInvalid = 0xFFFFFFFF

// lostAfter consecutive CLR_INVALID reads on in-bounds points means the DC is dead.
const lostAfter = 25

var procGetPixel = syscall.NewLazyDLL("gdi32.dll").NewProc("GetPixel")

// gdiReader reads pixels from the desktop DC.
type gdiReader struct {
	hdc     win.HDC
	bounds  image.Rectangle
	invalid int
	closed  atomic.Bool
}

// Open acquires the desktop device context.
func Open() (Reader, error) {
	if err := procGetPixel.Find(); err != nil {
		return nil, fmt.Errorf("gdi32 GetPixel: %v: %w", err, ErrResourceLost)
	}
	hdc := win.GetDC(0)
	if hdc == 0 {
		return nil, fmt.Errorf("GetDC failed: %w", ErrResourceLost)
	}
	w := int(win.GetSystemMetrics(win.SM_CXSCREEN))
	h := int(win.GetSystemMetrics(win.SM_CYSCREEN))
	return &gdiReader{hdc: hdc, bounds: image.Rect(0, 0, w, h)}, nil
}

func (g *gdiReader) ReadPixel(x, y int) (pixel.Color, error) {
	if g.closed.Load() {
		return pixel.Color{}, ErrResourceLost
	}
	ret, _, _ := procGetPixel.Call(uintptr(g.hdc), uintptr(x), uintptr(y))
	if uint32(ret) == clrInvalid {
		g.invalid++
		if g.invalid >= lostAfter {
			return pixel.Color{}, ErrResourceLost
		}
		return pixel.Color{}, ErrUnreadable
	}
	g.invalid = 0
	return pixel.FromCOLORREF(uint32(ret)), nil
}

func (g *gdiReader) Bounds() image.Rectangle { return g.bounds }

func (g *gdiReader) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	if !win.ReleaseDC(0, g.hdc) {
		return fmt.Errorf("ReleaseDC failed")
	}
	return nil
}
