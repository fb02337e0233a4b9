package detect

import (
	"math"

	"github.com/GriffinCanCode/pixel-trigger/internal/grid"
	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
)

// HSV window constants. The hue half-width in degrees is (1-tolerance)*MaxHueSpan.
const (
	MaxHueSpan = 100.0
	MinSatVal  = 50.0 / 255.0
)

// HSVRangeMatch fires when any readable sample's hue falls within a window around the
// target hue and its saturation and value clear MinSatVal. Hue wraps at 360.
type HSVRangeMatch struct {
	Signature Signature
	hue       float64
	halfWidth float64
}

// NewHSVRange derives the hue window from the signature.
func NewHSVRange(sig Signature) *HSVRangeMatch {
	h, _, _ := sig.Color.HSV()
	return &HSVRangeMatch{Signature: sig, hue: h, halfWidth: (1 - sig.Tolerance) * MaxHueSpan}
}

func (d *HSVRangeMatch) Name() string { return string(StrategyHSV) }

func (d *HSVRangeMatch) Evaluate(samples []grid.Sample) Result {
	r := score(d.Signature, samples)
	r.Matching = d.countInRange(samples)
	r.Detected = r.Matching > 0
	return r
}

// HueWindow returns the inclusive hue bounds in degrees; lo may be negative and hi
// may exceed 360 when the window wraps.
func (d *HSVRangeMatch) HueWindow() (lo, hi float64) {
	return d.hue - d.halfWidth, d.hue + d.halfWidth
}

func hueDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	return min(d, 360-d)
}

func inWindow(c pixel.Color, hue, halfWidth float64) bool {
	h, s, v := c.HSV()
	return s >= MinSatVal && v >= MinSatVal && hueDistance(h, hue) <= halfWidth
}
