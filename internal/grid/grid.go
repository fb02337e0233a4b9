// Package grid defines weighted sample grids around a focal point and scans them.
package grid

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
	"github.com/GriffinCanCode/pixel-trigger/internal/screen"
)

// Shape names accepted by Parse.
const (
	Shape3x3    = "3x3"
	Shape5x5    = "5x5"
	ShapeCustom = "custom"
)

// 5x5 weights by Chebyshev distance from center.
const (
	CenterWeight = 2.0
	InnerWeight  = 1.5
	OuterWeight  = 1.0
)

var ErrEmpty = errors.New("grid: no points")

// Point is an offset from the focal coordinate with a positive weight.
type Point struct {
	DX     int     `mapstructure:"dx" yaml:"dx" json:"dx"`
	DY     int     `mapstructure:"dy" yaml:"dy" json:"dy"`
	Weight float64 `mapstructure:"weight" yaml:"weight" json:"weight"`
}

// Sample is one in-bounds grid point read during a scan. OK is false when the
// pixel could not be read; such samples never count as a match.
type Sample struct {
	Point Point
	X, Y  int
	Color pixel.Color
	OK    bool
}

// Grid is an immutable set of points. The zero value is empty and invalid.
type Grid struct {
	name   string
	points []Point
}

// Uniform3x3 is 9 equally weighted points for low-latency strategies.
func Uniform3x3() Grid {
	pts := make([]Point, 0, 9)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			pts = append(pts, Point{DX: dx, DY: dy, Weight: 1})
		}
	}
	return Grid{name: Shape3x3, points: pts}
}

// Weighted5x5 is 25 points weighted 2.0 at center, 1.5 on the inner ring and 1.0 outside.
func Weighted5x5() Grid {
	pts := make([]Point, 0, 25)
	for dy := -2; dy <= 2; dy++ {
		for dx := -2; dx <= 2; dx++ {
			w := OuterWeight
			switch max(abs(dx), abs(dy)) {
			case 0:
				w = CenterWeight
			case 1:
				w = InnerWeight
			}
			pts = append(pts, Point{DX: dx, DY: dy, Weight: w})
		}
	}
	return Grid{name: Shape5x5, points: pts}
}

// Custom validates and copies points into a Grid.
func Custom(points []Point) (Grid, error) {
	if len(points) == 0 {
		return Grid{}, ErrEmpty
	}
	for i, p := range points {
		if !(p.Weight > 0) || math.IsInf(p.Weight, 0) {
			return Grid{}, fmt.Errorf("grid: point %d (%d,%d) has non-positive weight %v", i, p.DX, p.DY, p.Weight)
		}
	}
	return Grid{name: ShapeCustom, points: append([]Point(nil), points...)}, nil
}

// Parse resolves a shape name. custom is only consulted for ShapeCustom.
func Parse(shape string, custom []Point) (Grid, error) {
	switch shape {
	case Shape3x3:
		return Uniform3x3(), nil
	case Shape5x5, "":
		return Weighted5x5(), nil
	case ShapeCustom:
		return Custom(custom)
	}
	return Grid{}, fmt.Errorf("grid: unknown shape %q", shape)
}

// Name returns the shape name.
func (g Grid) Name() string { return g.name }

// Len returns the number of points.
func (g Grid) Len() int { return len(g.points) }

// Points returns a copy of the points.
func (g Grid) Points() []Point { return append([]Point(nil), g.points...) }

// Extent returns the rectangle covering every offset around focal.
func (g Grid) Extent(focal image.Point) image.Rectangle {
	var r image.Rectangle
	for i, p := range g.points {
		pr := image.Rect(focal.X+p.DX, focal.Y+p.DY, focal.X+p.DX+1, focal.Y+p.DY+1)
		if i == 0 {
			r = pr
			continue
		}
		r = r.Union(pr)
	}
	return r
}

// Scan reads every in-bounds point around focal. Points outside the reader's bounds
// are dropped silently; screen.ErrUnreadable yields a Sample with OK false; any other
// reader error aborts the scan.
func (g Grid) Scan(r screen.Reader, focal image.Point) ([]Sample, error) {
	bounds := r.Bounds()
	samples := make([]Sample, 0, len(g.points))
	for _, p := range g.points {
		x, y := focal.X+p.DX, focal.Y+p.DY
		if !image.Pt(x, y).In(bounds) {
			continue
		}
		samples = append(samples, Sample{Point: p, X: x, Y: y})
	}
	if len(samples) == 0 {
		return samples, nil
	}

	if rr, ok := r.(screen.RegionReader); ok {
		return fillFromRegion(rr, samples)
	}
	for i := range samples {
		c, err := r.ReadPixel(samples[i].X, samples[i].Y)
		switch {
		case err == nil:
			samples[i].Color, samples[i].OK = c, true
		case errors.Is(err, screen.ErrUnreadable):
		default:
			return nil, err
		}
	}
	return samples, nil
}

func fillFromRegion(rr screen.RegionReader, samples []Sample) ([]Sample, error) {
	var rect image.Rectangle
	for i, s := range samples {
		pr := image.Rect(s.X, s.Y, s.X+1, s.Y+1)
		if i == 0 {
			rect = pr
		} else {
			rect = rect.Union(pr)
		}
	}
	img, err := rr.ReadRegion(rect)
	if errors.Is(err, screen.ErrUnreadable) {
		return samples, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range samples {
		pt := image.Pt(samples[i].X, samples[i].Y)
		if !pt.In(img.Bounds()) {
			continue
		}
		o := img.PixOffset(pt.X, pt.Y)
		samples[i].Color = pixel.RGB(img.Pix[o], img.Pix[o+1], img.Pix[o+2])
		samples[i].OK = true
	}
	return samples, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
