package calibrate

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
	"github.com/GriffinCanCode/pixel-trigger/internal/screen"
)

func fill(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestSampleStableRegion(t *testing.T) {
	r := screen.FromImage(fill(50, 50, color.RGBA{128, 0, 128, 255}))
	c := New(r, image.Pt(25, 25))
	c.FrameGap = time.Millisecond

	res, err := c.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Frames)
	assert.InDelta(t, 1.0, pixel.Similarity(pixel.RGB(128, 0, 128), res.Color), 0.01)
	assert.Equal(t, image.Rect(21, 21, 30, 30), res.Region.Bounds())
}

// flicker alternates between two unrelated frames.
type flicker struct {
	a, b *screen.ImageReader
	n    atomic.Int32
}

func (f *flicker) pick() *screen.ImageReader {
	if f.n.Add(1)%2 == 0 {
		return f.a
	}
	return f.b
}
func (f *flicker) ReadPixel(x, y int) (pixel.Color, error) { return f.pick().ReadPixel(x, y) }
func (f *flicker) ReadRegion(r image.Rectangle) (*image.RGBA, error) {
	return f.pick().ReadRegion(r)
}
func (f *flicker) Bounds() image.Rectangle { return f.a.Bounds() }
func (f *flicker) Close() error            { return nil }

func checker(w, h, cell int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
			}
		}
	}
	return img
}

func TestSampleUnstable(t *testing.T) {
	f := &flicker{a: screen.FromImage(checker(64, 64, 4)), b: screen.FromImage(checker(64, 64, 1))}
	c := New(f, image.Pt(32, 32))
	c.Radius = 16
	c.MaxFrames = 4
	c.FrameGap = time.Millisecond
	c.MaxDistance = 0

	_, err := c.Sample(context.Background())
	assert.ErrorIs(t, err, ErrUnstable)
}

func TestSampleCancelled(t *testing.T) {
	f := &flicker{a: screen.FromImage(checker(64, 64, 4)), b: screen.FromImage(checker(64, 64, 1))}
	c := New(f, image.Pt(32, 32))
	c.Radius = 16
	c.MaxDistance = 0
	c.FrameGap = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Sample(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// pixelOnly hides the region fast path.
type pixelOnly struct{ screen.Reader }

func TestGrabPixelByPixel(t *testing.T) {
	src := fill(10, 10, color.RGBA{10, 20, 30, 255})
	img, err := Grab(pixelOnly{screen.FromImage(src)}, image.Rect(2, 2, 5, 5))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(2, 2, 5, 5), img.Bounds())
	assert.Equal(t, color.RGBA{10, 20, 30, 255}, img.RGBAAt(3, 3))

	_, err = Grab(pixelOnly{screen.FromImage(src)}, image.Rectangle{})
	assert.ErrorIs(t, err, screen.ErrUnreadable)
}

func TestSnapshotUpsamples(t *testing.T) {
	data, err := Snapshot(fill(3, 2, color.RGBA{255, 0, 0, 255}), 4)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
}
