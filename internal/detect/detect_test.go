package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/pixel-trigger/internal/grid"
	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
)

var (
	purple = pixel.RGB(128, 0, 128)
	near   = pixel.RGB(130, 5, 125) // ~0.986 to purple
	red    = pixel.RGB(255, 0, 0)   // ~0.592 to purple
	black  = pixel.RGB(0, 0, 0)
)

func samplesOf(colors ...pixel.Color) []grid.Sample {
	out := make([]grid.Sample, len(colors))
	for i, c := range colors {
		out[i] = grid.Sample{Point: grid.Point{Weight: 1}, X: i, Color: c, OK: true}
	}
	return out
}

func absent() grid.Sample { return grid.Sample{Point: grid.Point{Weight: 1}} }

func TestEmptyAndAbsentNeverDetect(t *testing.T) {
	for _, st := range Strategies {
		t.Run(string(st), func(t *testing.T) {
			d, err := New(Params{Strategy: st, Target: purple, Tolerance: 0.6, MinPixels: 1, Preset: "green"})
			require.NoError(t, err)

			assert.False(t, d.Evaluate(nil).Detected)
			r := d.Evaluate([]grid.Sample{absent(), absent(), absent()})
			assert.False(t, r.Detected)
			assert.Zero(t, r.Readable)
			assert.Zero(t, r.Average)
		})
	}
}

func TestToleranceMatch(t *testing.T) {
	tests := []struct {
		name string
		tol  float64
		in   []pixel.Color
		want bool
	}{
		{"near passes 0.6", 0.6, []pixel.Color{black, near}, true},
		{"red fails 0.6", 0.6, []pixel.Color{red}, false},
		{"red passes 0.5", 0.5, []pixel.Color{red}, true},
		{"exact at 1.0", 1.0, []pixel.Color{purple}, true},
		{"near fails 1.0", 1.0, []pixel.Color{near}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &ToleranceMatch{Signature: Signature{Color: purple, Tolerance: tt.tol}}
			assert.Equal(t, tt.want, d.Evaluate(samplesOf(tt.in...)).Detected)
		})
	}
}

func TestScoreExcludesAbsent(t *testing.T) {
	d := &ToleranceMatch{Signature: Signature{Color: purple, Tolerance: 0.9}}
	in := append(samplesOf(purple, purple), absent(), absent())

	r := d.Evaluate(in)
	assert.Equal(t, 2, r.Readable)
	assert.InDelta(t, 1.0, r.Average, 1e-9)
	assert.InDelta(t, 1.0, r.Best, 1e-9)
	assert.Equal(t, 2, r.Matching)
}

func TestQuorumTwoOfNineNeverDetects(t *testing.T) {
	in := samplesOf(purple, purple, red, red, red, red, red, red, red)
	// Heavy weights push the weighted average past tolerance; quorum must still fail.
	for i := range in {
		in[i].Point.Weight = 10
	}
	d := &WeightedQuorumMatch{Signature: Signature{Color: purple, Tolerance: 0.6}, MinPixels: 3}

	r := d.Evaluate(in)
	assert.Equal(t, 2, r.Matching)
	assert.GreaterOrEqual(t, r.Average, 0.6)
	assert.False(t, r.Detected)
}

func TestQuorumNeedsAverageToo(t *testing.T) {
	in := samplesOf(purple, purple, purple, black, black, black, black, black, black)
	d := &WeightedQuorumMatch{Signature: Signature{Color: purple, Tolerance: 0.9}, MinPixels: 3}

	r := d.Evaluate(in)
	assert.Equal(t, 3, r.Matching)
	assert.Less(t, r.Average, 0.9)
	assert.False(t, r.Detected)
}

func TestQuorumDetects(t *testing.T) {
	in := samplesOf(purple, near, near, near, purple, near, near, near, purple)
	in = append(in, absent())
	d := &WeightedQuorumMatch{Signature: Signature{Color: purple, Tolerance: 0.6}, MinPixels: 3}

	r := d.Evaluate(in)
	assert.True(t, r.Detected)
	assert.Equal(t, 9, r.Readable)
	assert.LessOrEqual(t, r.Average, 1.0)
}

func TestChannelHeuristic(t *testing.T) {
	green := pixel.RGB(10, 230, 20)
	h, err := PresetHeuristic("green")
	require.NoError(t, err)
	d := &ChannelHeuristicMatch{Heuristic: h}

	assert.False(t, d.Evaluate(samplesOf(green, green, black)).Detected)
	r := d.Evaluate(samplesOf(green, green, green, black))
	assert.True(t, r.Detected)
	assert.Equal(t, 3, r.Matching)

	_, err = PresetHeuristic("magenta")
	assert.Error(t, err)
}

func TestHeuristicBoundaries(t *testing.T) {
	h, _ := PresetHeuristic("red")
	assert.True(t, h.Match(pixel.RGB(201, 99, 99)))
	assert.False(t, h.Match(pixel.RGB(200, 0, 0)))
	assert.False(t, h.Match(pixel.RGB(255, 100, 0)))

	b, _ := PresetHeuristic("BLUE")
	assert.True(t, b.Match(pixel.RGB(0, 0, 181)))
}

func TestSequencePattern(t *testing.T) {
	r, g, b := pixel.RGB(220, 10, 10), pixel.RGB(10, 220, 10), pixel.RGB(10, 10, 220)
	d := &SequencePatternMatch{}

	assert.False(t, d.Evaluate(samplesOf(r, g, b)).Detected, "needs at least 9 samples")

	hit := samplesOf(black, black, black, r, g, b, black, black, black)
	assert.True(t, d.Evaluate(hit).Detected)

	// Offset by one so no aligned window carries the run.
	miss := samplesOf(black, r, g, b, black, black, black, black, black)
	assert.False(t, d.Evaluate(miss).Detected)

	broken := samplesOf(black, black, black, r, g, b, black, black, black)
	broken[4] = absent()
	assert.False(t, d.Evaluate(broken).Detected)
}

func TestSequencePatternRequiresDominance(t *testing.T) {
	d := &SequencePatternMatch{}
	// Red above the floor but green dominant.
	notRed := pixel.RGB(160, 200, 0)
	in := samplesOf(notRed, pixel.RGB(0, 220, 0), pixel.RGB(0, 0, 220), black, black, black, black, black, black)
	assert.False(t, d.Evaluate(in).Detected)
}

func TestHSVRange(t *testing.T) {
	d := NewHSVRange(Signature{Color: pixel.RGB(255, 0, 0), Tolerance: 0.8}) // +-20 degrees

	assert.True(t, d.Evaluate(samplesOf(pixel.RGB(255, 40, 0))).Detected)     // ~9 degrees
	assert.True(t, d.Evaluate(samplesOf(pixel.RGB(255, 0, 40))).Detected)     // wraps to ~351
	assert.False(t, d.Evaluate(samplesOf(pixel.RGB(0, 255, 0))).Detected)     // 120 degrees
	assert.False(t, d.Evaluate(samplesOf(pixel.RGB(20, 0, 0))).Detected)      // too dark
	assert.False(t, d.Evaluate(samplesOf(pixel.RGB(200, 190, 190))).Detected) // washed out

	lo, hi := d.HueWindow()
	assert.InDelta(t, -20, lo, 1e-9)
	assert.InDelta(t, 20, hi, 1e-9)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Params{Strategy: StrategyTolerance, Tolerance: 1.5})
	assert.Error(t, err)

	_, err = New(Params{Strategy: StrategyQuorum, Tolerance: 0.5})
	assert.Error(t, err)

	_, err = New(Params{Strategy: "nope", Tolerance: 0.5})
	assert.Error(t, err)

	d, err := New(Params{Strategy: StrategyChannel, Preset: "red", MinPixels: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, d.(*ChannelHeuristicMatch).Heuristic.MinCount)
	assert.Equal(t, "channel:red", d.Name())
}

func TestParseStrategy(t *testing.T) {
	st, err := ParseStrategy("QUORUM")
	require.NoError(t, err)
	assert.Equal(t, StrategyQuorum, st)

	_, err = ParseStrategy("magic")
	assert.Error(t, err)
}

func TestScoresTarget(t *testing.T) {
	for _, s := range []Strategy{StrategyTolerance, StrategyQuorum, StrategyHSV} {
		assert.True(t, s.ScoresTarget(), s)
	}
	for _, s := range []Strategy{StrategyChannel, StrategyPattern} {
		assert.False(t, s.ScoresTarget(), s)
	}
}
