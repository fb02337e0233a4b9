//go:build !gocv

package detect

import "github.com/GriffinCanCode/pixel-trigger/internal/grid"

func (d *HSVRangeMatch) countInRange(samples []grid.Sample) int {
	n := 0
	for _, s := range samples {
		if s.OK && inWindow(s.Color, d.hue, d.halfWidth) {
			n++
		}
	}
	return n
}
