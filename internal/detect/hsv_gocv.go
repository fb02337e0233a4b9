//go:build gocv

package detect

import (
	"math"

	"gocv.io/x/gocv"

	"github.com/GriffinCanCode/pixel-trigger/internal/grid"
)

// countInRange runs the window through OpenCV, whose hue scale is [0,180).
func (d *HSVRangeMatch) countInRange(samples []grid.Sample) int {
	readable := make([]grid.Sample, 0, len(samples))
	for _, s := range samples {
		if s.OK {
			readable = append(readable, s)
		}
	}
	if len(readable) == 0 {
		return 0
	}

	bgr := gocv.NewMatWithSize(1, len(readable), gocv.MatTypeCV8UC3)
	defer bgr.Close()
	for i, s := range readable {
		bgr.SetUCharAt(0, i*3, s.Color.B)
		bgr.SetUCharAt(0, i*3+1, s.Color.G)
		bgr.SetUCharAt(0, i*3+2, s.Color.R)
	}
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSV)

	lo, hi := d.HueWindow()
	total := 0
	for _, span := range splitHue(lo/2, hi/2) {
		mask := gocv.NewMat()
		gocv.InRangeWithScalar(hsv,
			gocv.NewScalar(span[0], 50, 50, 0),
			gocv.NewScalar(span[1], 255, 255, 0),
			&mask)
		total += gocv.CountNonZero(mask)
		mask.Close()
	}
	return total
}

// splitHue maps a possibly wrapping window onto disjoint spans of [0,179].
func splitHue(lo, hi float64) [][2]float64 {
	if hi-lo >= 180 {
		return [][2]float64{{0, 179}}
	}
	lo, hi = math.Floor(lo), math.Ceil(hi)
	switch {
	case lo < 0:
		return [][2]float64{{0, hi}, {180 + lo, 179}}
	case hi > 179:
		return [][2]float64{{lo, 179}, {0, hi - 180}}
	}
	return [][2]float64{{lo, hi}}
}
