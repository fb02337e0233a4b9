// Package trigger gates click injection behind a cooldown.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/pixel-trigger/internal/input"
)

// Trigger fires the injector at most once per cooldown. The cooldown is consumed
// only by a click the injector accepted, so a failed click may be retried on the
// next call.
type Trigger struct {
	injector input.Injector
	cooldown time.Duration

	mu       sync.Mutex
	lastFire time.Time
	fired    bool

	fires    atomic.Int64
	failures atomic.Int64
}

// New creates a trigger. A negative cooldown is treated as zero.
func New(inj input.Injector, cooldown time.Duration) *Trigger {
	return &Trigger{injector: inj, cooldown: max(cooldown, 0)}
}

// Rebind swaps the injector, keeping the cooldown and counters.
func (t *Trigger) Rebind(inj input.Injector) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.injector = inj
}

// Ready reports whether the cooldown has elapsed at now.
func (t *Trigger) Ready(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready(now)
}

func (t *Trigger) ready(now time.Time) bool {
	return !t.fired || now.Sub(t.lastFire) >= t.cooldown
}

// TryFire clicks if the cooldown allows it. It returns true only when the click
// was delivered; err carries the injector failure when one was attempted.
func (t *Trigger) TryFire(ctx context.Context, now time.Time) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ready(now) {
		return false, nil
	}
	if err := t.click(ctx); err != nil {
		t.failures.Add(1)
		return false, err
	}
	t.lastFire = now
	t.fired = true
	t.fires.Add(1)
	slog.Debug("trigger fired", "at", now.Format(time.RFC3339Nano), "cooldown", t.cooldown)
	return true, nil
}

func (t *Trigger) click(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("injector panic: %v", r)
		}
	}()
	return t.injector.Click(ctx)
}

// LastFired returns the time of the last delivered click and whether there was one.
func (t *Trigger) LastFired() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastFire, t.fired
}

// Fired returns the number of delivered clicks.
func (t *Trigger) Fired() int64 { return t.fires.Load() }

// Failed returns the number of rejected or panicking clicks.
func (t *Trigger) Failed() int64 { return t.failures.Load() }

// Cooldown returns the configured cooldown.
func (t *Trigger) Cooldown() time.Duration { return t.cooldown }
