package detect

import (
	"github.com/GriffinCanCode/pixel-trigger/internal/grid"
	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
)

// ToleranceMatch fires when any readable sample meets the tolerance.
type ToleranceMatch struct {
	Signature Signature
}

func (d *ToleranceMatch) Name() string { return string(StrategyTolerance) }

func (d *ToleranceMatch) Evaluate(samples []grid.Sample) Result {
	r := score(d.Signature, samples)
	for _, s := range samples {
		if s.OK && d.Signature.Matches(s.Color) {
			r.Matching++
		}
	}
	r.Detected = r.Matching > 0
	return r
}

// WeightedQuorumMatch needs both a quorum of individually matching samples and a
// weighted average at or above tolerance. The weighted average divides by the
// number of readable samples, not by the weight sum, and is clamped to [0,1].
type WeightedQuorumMatch struct {
	Signature Signature
	MinPixels int
}

func (d *WeightedQuorumMatch) Name() string { return string(StrategyQuorum) }

func (d *WeightedQuorumMatch) Evaluate(samples []grid.Sample) Result {
	r := score(d.Signature, samples)
	var weighted float64
	for _, s := range samples {
		if !s.OK {
			continue
		}
		sim := pixel.Similarity(d.Signature.Color, s.Color)
		weighted += sim * s.Point.Weight
		if sim >= d.Signature.Tolerance {
			r.Matching++
		}
	}
	if r.Readable == 0 {
		return r
	}
	r.Average = min(max(weighted/float64(r.Readable), 0), 1)
	r.Detected = r.Matching >= d.MinPixels && r.Average >= d.Signature.Tolerance
	return r
}
