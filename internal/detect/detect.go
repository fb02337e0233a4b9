// Package detect decides whether a scan contains the signal.
//
// Every strategy shares one convention: samples that could not be read are "no
// data". They never match and are left out of every average's denominator.
package detect

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/pixel-trigger/internal/grid"
	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
)

// Result is produced fresh for every scan.
type Result struct {
	Detected bool
	// Matching counts samples satisfying the strategy's per-sample predicate.
	Matching int
	// Readable counts samples that contributed data.
	Readable int
	// Average and Best are similarities to the target over readable samples.
	Average float64
	Best    float64
	Samples []grid.Sample
}

// Detector evaluates one scan. Implementations must tolerate empty input and
// unreadable samples.
type Detector interface {
	Evaluate(samples []grid.Sample) Result
	Name() string
}

// Strategy enumerates the detector variants.
type Strategy string

const (
	StrategyTolerance Strategy = "tolerance"
	StrategyQuorum    Strategy = "quorum"
	StrategyChannel   Strategy = "channel"
	StrategyPattern   Strategy = "pattern"
	StrategyHSV       Strategy = "hsv"
)

// Strategies lists every known strategy.
var Strategies = []Strategy{StrategyTolerance, StrategyQuorum, StrategyChannel, StrategyPattern, StrategyHSV}

// ParseStrategy resolves a case-insensitive strategy name.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("detect: unknown strategy %q", s)
}

// ScoresTarget reports whether the strategy decides on similarity to the target
// color. Channel and pattern detectors still fill Result.Average but never use it.
func (s Strategy) ScoresTarget() bool {
	switch s {
	case StrategyTolerance, StrategyQuorum, StrategyHSV:
		return true
	}
	return false
}

// Params configures New.
type Params struct {
	Strategy  Strategy
	Target    pixel.Color
	Tolerance float64
	// MinPixels is the quorum for StrategyQuorum and overrides the preset count for
	// StrategyChannel when positive.
	MinPixels int
	// Preset names a channel heuristic for StrategyChannel.
	Preset string
}

// New builds the detector for p.Strategy.
func New(p Params) (Detector, error) {
	if p.Tolerance < 0 || p.Tolerance > 1 {
		return nil, fmt.Errorf("detect: tolerance %v outside [0,1]", p.Tolerance)
	}
	sig := Signature{Color: p.Target, Tolerance: p.Tolerance}
	switch p.Strategy {
	case StrategyTolerance:
		return &ToleranceMatch{Signature: sig}, nil
	case StrategyQuorum:
		if p.MinPixels < 1 {
			return nil, fmt.Errorf("detect: quorum needs min pixels >= 1, got %d", p.MinPixels)
		}
		return &WeightedQuorumMatch{Signature: sig, MinPixels: p.MinPixels}, nil
	case StrategyChannel:
		h, err := PresetHeuristic(p.Preset)
		if err != nil {
			return nil, err
		}
		if p.MinPixels > 0 {
			h.MinCount = p.MinPixels
		}
		return &ChannelHeuristicMatch{Signature: sig, Heuristic: h}, nil
	case StrategyPattern:
		return &SequencePatternMatch{Signature: sig}, nil
	case StrategyHSV:
		return NewHSVRange(sig), nil
	}
	return nil, fmt.Errorf("detect: unknown strategy %q", p.Strategy)
}

// Signature is the target color and the minimum similarity counted as a match.
// Higher tolerance is stricter.
type Signature struct {
	Color     pixel.Color
	Tolerance float64
}

// Matches reports whether c is at least Tolerance similar to the target.
func (s Signature) Matches(c pixel.Color) bool {
	return pixel.Similarity(s.Color, c) >= s.Tolerance
}

// score fills Readable, Average and Best against the target.
func score(sig Signature, samples []grid.Sample) Result {
	r := Result{Samples: samples}
	var sum float64
	for _, s := range samples {
		if !s.OK {
			continue
		}
		sim := pixel.Similarity(sig.Color, s.Color)
		sum += sim
		r.Best = max(r.Best, sim)
		r.Readable++
	}
	if r.Readable > 0 {
		r.Average = sum / float64(r.Readable)
	}
	return r
}
