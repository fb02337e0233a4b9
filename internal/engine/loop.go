package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/GriffinCanCode/pixel-trigger/internal/detect"
	apperrors "github.com/GriffinCanCode/pixel-trigger/internal/errors"
	"github.com/GriffinCanCode/pixel-trigger/internal/grid"
	"github.com/GriffinCanCode/pixel-trigger/internal/input"
	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
	"github.com/GriffinCanCode/pixel-trigger/internal/resilience"
	"github.com/GriffinCanCode/pixel-trigger/internal/screen"
	"github.com/GriffinCanCode/pixel-trigger/internal/stats"
	"github.com/GriffinCanCode/pixel-trigger/internal/trace"
)

// ErrorLogEvery throttles iteration failure logs: the first and every Nth are logged.
const ErrorLogEvery = 10

// loop runs until ctx is cancelled. Iteration failures and lost resources are
// absorbed here; nothing but cancellation ends the loop.
func (e *Engine) loop(ctx context.Context, r *run, det detect.Detector, st *stats.Stats) {
	log := trace.Logger(ctx)
	defer close(r.done)
	defer func() {
		if r.injector != nil {
			closeQuietly(ctx, "injector", r.injector.Close)
		}
		if r.reader != nil {
			closeQuietly(ctx, "reader", r.reader.Close)
		}
		st.End(e.deps.Now())
		if r.emergency.Load() {
			log.Warn("emergency stop", "run_id", r.id)
			e.setState(Stopped)
			return
		}
		e.setState(Idle)
	}()

	for ctx.Err() == nil {
		err := e.iterate(ctx, r, det, st)
		switch {
		case err == nil:
			sleep(ctx, r.cfg.ScanInterval)
		case ctx.Err() != nil:
			return
		case errors.Is(err, screen.ErrResourceLost), errors.Is(err, input.ErrResourceLost):
			e.recoverHandle(ctx, r, st, err)
		default:
			n := st.IncError()
			if n == 1 || n%ErrorLogEvery == 0 {
				log.Error("iteration failed", "errors", n, "error", err)
				e.events.Emit(Event{Time: e.deps.Now(), Kind: EventError, Message: err.Error(),
					Attrs: map[string]any{"errors": n}})
			}
			sleep(ctx, r.cfg.ErrorBackoff)
		}
	}
}

// iterate performs one scan, evaluate, act cycle. Panics become IterationFailure.
func (e *Engine) iterate(ctx context.Context, r *run, det detect.Detector, st *stats.Stats) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = apperrors.Newf(apperrors.IterationFailure, "iteration panic: %v", p)
		}
	}()
	if r.reader == nil {
		return screen.ErrResourceLost
	}

	start := time.Now()
	focal := r.focal()
	samples, err := r.cfg.Grid.Scan(r.reader, focal)
	if err != nil {
		if errors.Is(err, screen.ErrResourceLost) {
			return err
		}
		return apperrors.Wrap(err, apperrors.IterationFailure, "scan")
	}
	res := det.Evaluate(samples)
	avg := res.Average
	if !r.cfg.Strategy.ScoresTarget() {
		avg = 0
	}
	st.ObserveScan(time.Since(start), res.Detected, avg)
	if c, ok := focalColor(samples, focal); ok {
		st.ObserveColor(c)
	}

	if !res.Detected || !e.armed.Load() {
		return nil
	}
	if r.injector == nil {
		return input.ErrResourceLost
	}
	now := e.deps.Now()
	fired, ferr := r.trigger.TryFire(ctx, now)
	switch {
	case errors.Is(ferr, input.ErrResourceLost):
		return ferr
	case fired:
		st.IncAction()
		e.events.Emit(Event{Time: now, Kind: EventAction, Message: "click delivered",
			Attrs: map[string]any{"matching": res.Matching, "average": res.Average}})
	case ferr != nil && ctx.Err() == nil:
		st.IncActionFailure()
		trace.Logger(ctx).Debug("click failed", "error", ferr)
		e.events.Emit(Event{Time: now, Kind: EventFailure, Message: ferr.Error()})
	}
	return nil
}

// recoverHandle handles a lost reader or injector: count it, try to reacquire,
// back off, resume. The loop returns to Running whether or not reacquisition worked.
func (e *Engine) recoverHandle(ctx context.Context, r *run, st *stats.Stats, cause error) {
	e.setState(Recovering)
	ctx, span := trace.StartSpan(ctx, "engine.recover")
	defer span.End()

	handle := "reader"
	if errors.Is(cause, input.ErrResourceLost) {
		handle = "injector"
	}
	n := st.IncRecovery()
	span.SetAttr("recoveries", n)
	span.SetAttr("handle", handle)
	log := trace.Logger(ctx)
	log.Warn(handle+" lost, recovering", "recoveries", n, "error", cause)

	var err error
	if handle == "injector" {
		err = e.reacquireInjector(ctx, r)
	} else {
		err = e.reacquireReader(ctx, r)
	}
	if err != nil && ctx.Err() == nil {
		span.SetAttr("error", err.Error())
		log.Warn("reacquire failed, will retry", "handle", handle, "error", err)
	}
	e.events.Emit(Event{Time: e.deps.Now(), Kind: EventRecovery, Message: fmt.Sprintf("recovery %d", n),
		Attrs: map[string]any{"handle": handle, "reacquired": err == nil}})

	sleep(ctx, r.cfg.RecoveryBackoff)
	log.Debug("recovery finished", "span", span)
	if ctx.Err() == nil {
		e.setState(Running)
	}
}

func (e *Engine) reacquireReader(ctx context.Context, r *run) error {
	if r.reader != nil {
		closeQuietly(ctx, "reader", r.reader.Close)
		r.reader = nil
	}
	reader, err := e.acquireReader(ctx, resilience.ReacquireConfig())
	if err != nil {
		return err
	}
	r.reader = reader
	return nil
}

// reacquireInjector reopens the injector and rebinds the trigger to it, so the
// cooldown carries across the swap.
func (e *Engine) reacquireInjector(ctx context.Context, r *run) error {
	if r.injector != nil {
		closeQuietly(ctx, "injector", r.injector.Close)
		r.injector = nil
	}
	inj, err := e.acquireInjector(ctx, r.cfg.Input, resilience.ReacquireConfig())
	if err != nil {
		return err
	}
	r.injector = inj
	r.trigger.Rebind(inj)
	return nil
}

func (r *run) focal() image.Point {
	if r.cfg.Focal != nil {
		return *r.cfg.Focal
	}
	return screen.Center(r.reader.Bounds())
}

// focalColor returns the sample at focal, or the first readable one.
func focalColor(samples []grid.Sample, focal image.Point) (c pixel.Color, ok bool) {
	for _, s := range samples {
		if s.OK && s.X == focal.X && s.Y == focal.Y {
			return s.Color, true
		}
	}
	for _, s := range samples {
		if s.OK {
			return s.Color, true
		}
	}
	return c, false
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
