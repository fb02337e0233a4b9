package engine

import (
	"image"
	"time"

	"github.com/GriffinCanCode/pixel-trigger/internal/detect"
	apperrors "github.com/GriffinCanCode/pixel-trigger/internal/errors"
	"github.com/GriffinCanCode/pixel-trigger/internal/grid"
	"github.com/GriffinCanCode/pixel-trigger/internal/input"
	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
	"github.com/GriffinCanCode/pixel-trigger/internal/stats"
)

// Timing defaults.
const (
	DefaultScanInterval    = 10 * time.Millisecond
	DefaultCooldown        = 100 * time.Millisecond
	DefaultErrorBackoff    = 100 * time.Millisecond
	DefaultRecoveryBackoff = 500 * time.Millisecond
)

// Settings is everything one run needs. A run works on its own copy, so changes
// made with Configure apply from the next Start.
type Settings struct {
	Target    pixel.Color
	Tolerance float64
	Grid      grid.Grid
	Strategy  detect.Strategy
	MinPixels int
	Preset    string

	ScanInterval    time.Duration
	Cooldown        time.Duration
	ErrorBackoff    time.Duration
	RecoveryBackoff time.Duration

	Input input.Options
	// Focal is the grid center; nil follows the reader's display center.
	Focal *image.Point

	ScanWindow  int
	ColorWindow int
	// AccumulateStats keeps counters across runs instead of resetting on Start.
	AccumulateStats bool
}

// DefaultSettings matches the purple-target, 5x5 quorum setup.
func DefaultSettings() Settings {
	return Settings{
		Target:          pixel.RGB(128, 0, 128),
		Tolerance:       0.85,
		Grid:            grid.Weighted5x5(),
		Strategy:        detect.StrategyQuorum,
		MinPixels:       3,
		Preset:          "green",
		ScanInterval:    DefaultScanInterval,
		Cooldown:        DefaultCooldown,
		ErrorBackoff:    DefaultErrorBackoff,
		RecoveryBackoff: DefaultRecoveryBackoff,
		Input:           input.Options{Method: input.MethodHardware, Jitter: input.DefaultJitter()},
		ScanWindow:      stats.DefaultScanWindow,
		ColorWindow:     stats.DefaultColorWindow,
	}
}

// Validate reports the first out-of-range field as a ConfigInvalid error.
func (s Settings) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return apperrors.Newf(apperrors.ConfigInvalid, format, args...).WithMetadata("field", field)
	}
	switch {
	case s.Tolerance < 0 || s.Tolerance > 1:
		return invalid("tolerance", "tolerance %v outside [0,1]", s.Tolerance)
	case s.Grid.Len() == 0:
		return invalid("grid", "sample grid is empty")
	case s.ScanInterval <= 0:
		return invalid("scan_interval", "scan interval must be positive, got %v", s.ScanInterval)
	case s.Cooldown < 0:
		return invalid("cooldown", "cooldown must not be negative, got %v", s.Cooldown)
	case s.ErrorBackoff < 0:
		return invalid("error_backoff", "error backoff must not be negative, got %v", s.ErrorBackoff)
	case s.RecoveryBackoff < 0:
		return invalid("recovery_backoff", "recovery backoff must not be negative, got %v", s.RecoveryBackoff)
	}
	if _, err := input.ParseMethod(string(s.Input.Method)); err != nil {
		return invalid("method", "%v", err)
	}
	if err := s.Input.Jitter.Validate(); err != nil {
		return invalid("jitter", "%v", err)
	}
	if _, err := s.detector(); err != nil {
		return invalid("strategy", "%v", err)
	}
	return nil
}

func (s Settings) detector() (detect.Detector, error) {
	return detect.New(detect.Params{
		Strategy:  s.Strategy,
		Target:    s.Target,
		Tolerance: s.Tolerance,
		MinPixels: s.MinPixels,
		Preset:    s.Preset,
	})
}
