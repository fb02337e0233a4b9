package input

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

// DryRun honors jitter timing and counts clicks without injecting anything.
type DryRun struct {
	jitter Jitter
	mu     sync.Mutex
	rng    *rand.Rand
	clicks atomic.Int64
	last   Timing
}

// NewDryRun creates a recording injector.
func NewDryRun(j Jitter) *DryRun {
	return &DryRun{jitter: j, rng: newRand()}
}

// Click waits out the drawn hold and release and records the click.
func (d *DryRun) Click(ctx context.Context) error {
	d.mu.Lock()
	t := d.jitter.Draw(d.rng)
	d.last = t
	d.mu.Unlock()

	if err := pause(ctx, t.Hold); err != nil {
		return err
	}
	if err := pause(ctx, t.Release); err != nil {
		return err
	}
	n := d.clicks.Add(1)
	slog.Debug("dry-run click", "n", n, "hold", t.Hold, "release", t.Release, "dx", t.DX, "dy", t.DY)
	return nil
}

// Clicks returns how many clicks were recorded.
func (d *DryRun) Clicks() int64 { return d.clicks.Load() }

// Last returns the timing of the most recent click.
func (d *DryRun) Last() Timing {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *DryRun) Close() error { return nil }
