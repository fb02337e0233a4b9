// Package calibrate derives a target color from the live screen.
package calibrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/gift"

	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
	"github.com/GriffinCanCode/pixel-trigger/internal/screen"
)

// Defaults for Sample.
const (
	DefaultRadius      = 4
	DefaultMaxFrames   = 20
	DefaultFrameGap    = 50 * time.Millisecond
	DefaultMaxDistance = 2
	DefaultBlurSigma   = 1.0
)

// ErrUnstable is returned when no two consecutive frames were similar enough.
var ErrUnstable = errors.New("calibrate: region never stabilized")

// Calibrator samples a square region centered on a focal point.
type Calibrator struct {
	Reader screen.Reader
	Focal  image.Point
	Radius int
	// MaxFrames bounds how many frames are grabbed waiting for stability.
	MaxFrames int
	FrameGap  time.Duration
	// MaxDistance is the largest perceptual hash distance treated as "same frame".
	MaxDistance int
	BlurSigma   float32
}

// New creates a calibrator with defaults around focal.
func New(r screen.Reader, focal image.Point) *Calibrator {
	return &Calibrator{
		Reader:      r,
		Focal:       focal,
		Radius:      DefaultRadius,
		MaxFrames:   DefaultMaxFrames,
		FrameGap:    DefaultFrameGap,
		MaxDistance: DefaultMaxDistance,
		BlurSigma:   DefaultBlurSigma,
	}
}

// Result of a calibration.
type Result struct {
	Color  pixel.Color
	Frames int
	Region *image.RGBA
}

// Sample grabs frames until two consecutive ones hash within MaxDistance, then
// blurs the stable frame and returns its center color.
func (c *Calibrator) Sample(ctx context.Context) (Result, error) {
	var prev *goimagehash.ImageHash
	for i := 1; i <= max(c.MaxFrames, 2); i++ {
		frame, err := Grab(c.Reader, c.region())
		if err != nil {
			return Result{}, err
		}
		hash, err := goimagehash.PerceptionHash(frame)
		if err != nil {
			return Result{}, fmt.Errorf("calibrate: hash frame: %w", err)
		}
		if prev != nil {
			dist, err := prev.Distance(hash)
			if err == nil && dist <= c.MaxDistance {
				return Result{Color: c.center(frame), Frames: i, Region: frame}, nil
			}
		}
		prev = hash

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(c.FrameGap):
		}
	}
	return Result{}, ErrUnstable
}

func (c *Calibrator) region() image.Rectangle {
	r := image.Rect(c.Focal.X-c.Radius, c.Focal.Y-c.Radius, c.Focal.X+c.Radius+1, c.Focal.Y+c.Radius+1)
	return r.Intersect(c.Reader.Bounds())
}

// center blurs frame to suppress single-pixel noise and reads the focal pixel.
func (c *Calibrator) center(frame *image.RGBA) pixel.Color {
	src := frame
	if c.BlurSigma > 0 {
		g := gift.New(gift.GaussianBlur(c.BlurSigma))
		dst := image.NewRGBA(g.Bounds(frame.Bounds()))
		g.Draw(dst, frame)
		src = dst
	}
	// gift output starts at the origin.
	pt := c.Focal.Sub(frame.Bounds().Min).Add(src.Bounds().Min)
	if !pt.In(src.Bounds()) {
		pt = image.Pt(src.Bounds().Dx()/2, src.Bounds().Dy()/2).Add(src.Bounds().Min)
	}
	o := src.PixOffset(pt.X, pt.Y)
	return pixel.RGB(src.Pix[o], src.Pix[o+1], src.Pix[o+2])
}

// Grab reads rect through the region fast path when the reader has one, pixel
// by pixel otherwise. Unreadable pixels are left black.
func Grab(r screen.Reader, rect image.Rectangle) (*image.RGBA, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("calibrate: empty region: %w", screen.ErrUnreadable)
	}
	if rr, ok := r.(screen.RegionReader); ok {
		return rr.ReadRegion(rect)
	}
	img := image.NewRGBA(rect)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			c, err := r.ReadPixel(x, y)
			if errors.Is(err, screen.ErrUnreadable) {
				continue
			}
			if err != nil {
				return nil, err
			}
			o := img.PixOffset(x, y)
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = c.R, c.G, c.B, 0xff
		}
	}
	return img, nil
}

// Snapshot upsamples img by scale with nearest-neighbor so single pixels stay
// visible, and encodes it as PNG.
func Snapshot(img image.Image, scale int) ([]byte, error) {
	scale = max(scale, 1)
	b := img.Bounds()
	g := gift.New(gift.Resize(b.Dx()*scale, b.Dy()*scale, gift.NearestNeighborResampling))
	dst := image.NewRGBA(g.Bounds(b))
	g.Draw(dst, img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
