package detect

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/pixel-trigger/internal/grid"
	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
)

// Heuristic is a per-channel threshold predicate: the primary channel must exceed
// High while the other two stay below Low.
type Heuristic struct {
	Name     string
	Primary  pixel.Channel
	High     uint8
	Low      uint8
	MinCount int
}

// Match reports whether c satisfies the predicate.
func (h Heuristic) Match(c pixel.Color) bool {
	for ch := pixel.Red; ch <= pixel.Blue; ch++ {
		v := c.Get(ch)
		if ch == h.Primary {
			if v <= h.High {
				return false
			}
		} else if v >= h.Low {
			return false
		}
	}
	return true
}

var presets = map[string]Heuristic{
	"green": {Name: "green", Primary: pixel.Green, High: 200, Low: 100, MinCount: 3},
	"red":   {Name: "red", Primary: pixel.Red, High: 200, Low: 100, MinCount: 3},
	"blue":  {Name: "blue", Primary: pixel.Blue, High: 180, Low: 100, MinCount: 3},
}

// PresetHeuristic returns a named preset.
func PresetHeuristic(name string) (Heuristic, error) {
	h, ok := presets[strings.ToLower(name)]
	if !ok {
		return Heuristic{}, fmt.Errorf("detect: unknown channel preset %q", name)
	}
	return h, nil
}

// ChannelHeuristicMatch counts samples satisfying a channel predicate and fires
// once the count reaches the heuristic's minimum.
type ChannelHeuristicMatch struct {
	Signature Signature
	Heuristic Heuristic
}

func (d *ChannelHeuristicMatch) Name() string {
	return string(StrategyChannel) + ":" + d.Heuristic.Name
}

func (d *ChannelHeuristicMatch) Evaluate(samples []grid.Sample) Result {
	r := score(d.Signature, samples)
	for _, s := range samples {
		if s.OK && d.Heuristic.Match(s.Color) {
			r.Matching++
		}
	}
	r.Detected = r.Matching >= max(d.Heuristic.MinCount, 1)
	return r
}

// Sequence pattern constants.
const (
	PatternWindow     = 3
	PatternMinSamples = 9
	// PatternFloor is the minimum value of the dominant channel.
	PatternFloor = 150
)

var patternOrder = [PatternWindow]pixel.Channel{pixel.Red, pixel.Green, pixel.Blue}

// SequencePatternMatch scans consecutive, non-overlapping windows of three samples
// for a red-dominant, green-dominant, blue-dominant run.
type SequencePatternMatch struct {
	Signature Signature
}

func (d *SequencePatternMatch) Name() string { return string(StrategyPattern) }

func (d *SequencePatternMatch) Evaluate(samples []grid.Sample) Result {
	r := score(d.Signature, samples)
	if len(samples) < PatternMinSamples {
		return r
	}
	for i := 0; i+PatternWindow <= len(samples); i += PatternWindow {
		if windowMatches(samples[i : i+PatternWindow]) {
			r.Matching++
		}
	}
	r.Detected = r.Matching > 0
	return r
}

func windowMatches(w []grid.Sample) bool {
	for i, ch := range patternOrder {
		s := w[i]
		if !s.OK || s.Color.Dominant() != ch || s.Color.Get(ch) <= PatternFloor {
			return false
		}
	}
	return true
}
