// Package input synthesizes primary-button clicks.
package input

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

var (
	// ErrUnsupported is returned when no backend exists for the platform or method.
	ErrUnsupported = errors.New("input: unsupported on this platform")
	// ErrRejected is returned when the OS reports the click was not delivered.
	ErrRejected = errors.New("input: click rejected")
	// ErrResourceLost is returned when the injection handle is no longer valid;
	// the holder should close the injector and open a fresh one.
	ErrResourceLost = errors.New("input: injection handle lost")
)

// Method selects the click mechanism.
type Method string

const (
	// MethodHardware injects through the system input queue.
	MethodHardware Method = "hardware"
	// MethodPost posts button messages to the foreground window.
	MethodPost Method = "post"
	// MethodSend sends button messages to the foreground window synchronously.
	MethodSend Method = "send"
	// MethodSimulate moves the cursor and raises legacy mouse events.
	MethodSimulate Method = "simulate"
)

// Methods lists every known method.
var Methods = []Method{MethodHardware, MethodPost, MethodSend, MethodSimulate}

// ParseMethod resolves a case-insensitive method name.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("input: unknown method %q", s)
}

// Injector clicks at the current pointer location. A nil error means the OS
// accepted both press and release.
type Injector interface {
	Click(ctx context.Context) error
	Close() error
}

// Jitter bounds the randomized micro-timing of a click.
type Jitter struct {
	HoldMin    time.Duration `mapstructure:"hold_min" yaml:"hold_min" json:"hold_min"`
	HoldMax    time.Duration `mapstructure:"hold_max" yaml:"hold_max" json:"hold_max"`
	ReleaseMin time.Duration `mapstructure:"release_min" yaml:"release_min" json:"release_min"`
	ReleaseMax time.Duration `mapstructure:"release_max" yaml:"release_max" json:"release_max"`
	// CursorPx nudges the pointer up to this many pixels before the press. 0 disables.
	CursorPx int `mapstructure:"cursor_px" yaml:"cursor_px" json:"cursor_px"`
}

// DefaultJitter holds 8-15ms and releases after 1-3ms.
func DefaultJitter() Jitter {
	return Jitter{
		HoldMin:    8 * time.Millisecond,
		HoldMax:    15 * time.Millisecond,
		ReleaseMin: time.Millisecond,
		ReleaseMax: 3 * time.Millisecond,
	}
}

// Validate checks ranges are ordered and non-negative.
func (j Jitter) Validate() error {
	switch {
	case j.HoldMin < 0 || j.ReleaseMin < 0 || j.CursorPx < 0:
		return fmt.Errorf("input: jitter values must be non-negative")
	case j.HoldMax < j.HoldMin:
		return fmt.Errorf("input: hold range inverted (%v > %v)", j.HoldMin, j.HoldMax)
	case j.ReleaseMax < j.ReleaseMin:
		return fmt.Errorf("input: release range inverted (%v > %v)", j.ReleaseMin, j.ReleaseMax)
	}
	return nil
}

// Timing is one click's drawn jitter.
type Timing struct {
	Hold    time.Duration
	Release time.Duration
	DX, DY  int
}

// Draw samples a Timing from rng.
func (j Jitter) Draw(rng *rand.Rand) Timing {
	t := Timing{
		Hold:    between(rng, j.HoldMin, j.HoldMax),
		Release: between(rng, j.ReleaseMin, j.ReleaseMax),
	}
	if j.CursorPx > 0 {
		t.DX = rng.IntN(2*j.CursorPx+1) - j.CursorPx
		t.DY = rng.IntN(2*j.CursorPx+1) - j.CursorPx
	}
	return t
}

func between(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int64N(int64(hi-lo)+1))
}

// Options configures Open.
type Options struct {
	Method Method
	Jitter Jitter
	// DryRun records clicks without touching the OS.
	DryRun bool
}

// Opener acquires an injector for one run.
type Opener func(Options) (Injector, error)

// Open returns the dry-run injector or the platform backend for opts.Method.
func Open(opts Options) (Injector, error) {
	if err := opts.Jitter.Validate(); err != nil {
		return nil, err
	}
	if opts.DryRun {
		return NewDryRun(opts.Jitter), nil
	}
	if _, err := ParseMethod(string(opts.Method)); err != nil {
		return nil, err
	}
	return openPlatform(opts)
}

func newRand() *rand.Rand {
	now := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(now, now>>17|1))
}

// pause sleeps for d or until ctx ends.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
