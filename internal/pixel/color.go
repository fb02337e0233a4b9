// Package pixel defines the RGB sample type and the similarity metric shared by detectors
package pixel

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// MaxDistance is the euclidean distance between black and white in RGB space.
var MaxDistance = math.Sqrt(3 * 255 * 255)

// Channel identifies one RGB component.
type Channel int

const (
	Red Channel = iota
	Green
	Blue
)

func (c Channel) String() string {
	return [...]string{"red", "green", "blue"}[c]
}

// Color is an immutable 8-bit RGB triple.
type Color struct {
	R, G, B uint8
}

// RGB builds a Color.
func RGB(r, g, b uint8) Color { return Color{R: r, G: g, B: b} }

// Distance returns the euclidean RGB distance between two colors.
func Distance(a, b Color) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// Similarity maps RGB distance onto [0,1]: 1 for identical colors, 0 for black vs white.
func Similarity(a, b Color) float64 {
	s := 1 - Distance(a, b)/MaxDistance
	return math.Max(0, math.Min(1, s))
}

// Get returns the value of one channel.
func (c Color) Get(ch Channel) uint8 {
	switch ch {
	case Red:
		return c.R
	case Green:
		return c.G
	default:
		return c.B
	}
}

// Dominant returns the strongest channel. Ties resolve in R, G, B order.
func (c Color) Dominant() Channel {
	switch {
	case c.R >= c.G && c.R >= c.B:
		return Red
	case c.G >= c.B:
		return Green
	default:
		return Blue
	}
}

// HSV returns hue in degrees [0,360) and saturation/value in [0,1].
func (c Color) HSV() (h, s, v float64) {
	return c.colorful().Hsv()
}

// Hex formats as #rrggbb.
func (c Color) Hex() string { return c.colorful().Hex() }

func (c Color) String() string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}

func (c Color) colorful() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

// ParseHex parses #rrggbb or #rgb.
func ParseHex(s string) (Color, error) {
	cc, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("pixel: invalid hex color %q: %w", s, err)
	}
	r, g, b := cc.RGB255()
	return Color{R: r, G: g, B: b}, nil
}

// FromCOLORREF decodes a Windows 0x00bbggrr value.
func FromCOLORREF(ref uint32) Color {
	return Color{R: uint8(ref), G: uint8(ref >> 8), B: uint8(ref >> 16)}
}
