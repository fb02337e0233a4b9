// Package engine runs the sample, evaluate, act loop and owns its lifecycle.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/GriffinCanCode/pixel-trigger/internal/errors"
	"github.com/GriffinCanCode/pixel-trigger/internal/input"
	"github.com/GriffinCanCode/pixel-trigger/internal/resilience"
	"github.com/GriffinCanCode/pixel-trigger/internal/screen"
	"github.com/GriffinCanCode/pixel-trigger/internal/stats"
	"github.com/GriffinCanCode/pixel-trigger/internal/syncx"
	"github.com/GriffinCanCode/pixel-trigger/internal/trace"
	"github.com/GriffinCanCode/pixel-trigger/internal/trigger"
)

// State of the detection loop.
type State int32

const (
	Idle State = iota
	Running
	Recovering
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Recovering:
		return "recovering"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Active reports whether a run is in progress.
func (s State) Active() bool { return s == Running || s == Recovering }

// Cue plays operator feedback. Implementations must not block for long.
type Cue interface {
	Armed(on bool)
	Emergency()
}

// Deps are the collaborators the engine acquires per run.
type Deps struct {
	OpenReader   screen.Opener
	OpenInjector input.Opener
	// Now defaults to time.Now.
	Now func() time.Time
	// Cue is optional.
	Cue Cue
}

// Engine owns one detection loop at a time.
type Engine struct {
	deps     Deps
	settings *syncx.RWGuard[Settings]
	stats    *syncx.RWGuard[*stats.Stats]
	events   *EventLog
	armed    syncx.Flag

	mu      sync.Mutex // serializes Start/Stop
	state   atomic.Int32
	run     *run
	hooksMu sync.RWMutex
	hooks   []func(from, to State)
}

// run is the state private to one loop goroutine.
type run struct {
	id        string
	cfg       Settings
	cancel    context.CancelFunc
	done      chan struct{}
	emergency atomic.Bool

	reader  screen.Reader
	injector input.Injector
	trigger *trigger.Trigger
}

// New creates an idle, armed engine with default settings.
func New(deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.OpenReader == nil {
		deps.OpenReader = screen.Open
	}
	if deps.OpenInjector == nil {
		deps.OpenInjector = input.Open
	}
	def := DefaultSettings()
	e := &Engine{
		deps:     deps,
		settings: syncx.NewGuard(def),
		stats:    syncx.NewGuard(stats.New(def.ScanWindow, def.ColorWindow)),
		events:   NewEventLog(EventLogSize, EventBufferLen),
	}
	e.armed.Store(true)
	return e
}

// Configure validates and stores settings for the next run.
func (e *Engine) Configure(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.settings.Set(s)
	return nil
}

// Settings returns the stored settings.
func (e *Engine) Settings() Settings { return e.settings.Get() }

// OnStateChange registers fn to run synchronously on every transition. fn must
// not call Start or Stop.
func (e *Engine) OnStateChange(fn func(from, to State)) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.hooks = append(e.hooks, fn)
}

// State returns the current state.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(to State) {
	from := State(e.state.Swap(int32(to)))
	if from == to {
		return
	}
	e.events.Emit(Event{Time: e.deps.Now(), Kind: EventState, Message: to.String(),
		Attrs: map[string]any{"from": from.String()}})
	e.hooksMu.RLock()
	defer e.hooksMu.RUnlock()
	for _, fn := range e.hooks {
		fn(from, to)
	}
}

// Start validates the stored settings, acquires the reader and injector and
// launches the loop. The loop outlives ctx's cancellation but keeps its values.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State().Active() {
		return apperrors.New(apperrors.AlreadyRunning, "engine already running")
	}
	cfg := e.settings.Get()
	if err := cfg.Validate(); err != nil {
		return err
	}
	det, err := cfg.detector()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ConfigInvalid, "build detector")
	}

	reader, err := e.acquireReader(ctx, resilience.DefaultRetryConfig())
	if err != nil {
		return apperrors.Wrap(err, apperrors.PlatformUnavailable, "acquire screen reader")
	}
	inj, err := e.deps.OpenInjector(cfg.Input)
	if err != nil {
		closeQuietly(ctx, "reader", reader.Close)
		return apperrors.Wrap(err, apperrors.PlatformUnavailable, "acquire input injector")
	}

	st := e.stats.Get()
	if !cfg.AccumulateStats {
		st = stats.New(cfg.ScanWindow, cfg.ColorWindow)
		e.stats.Set(st)
	}
	now := e.deps.Now()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx, span := trace.StartSpan(runCtx, "engine.run")
	r := &run{
		id:       st.Begin(now),
		cfg:      cfg,
		cancel:   cancel,
		done:     make(chan struct{}),
		reader:   reader,
		injector: inj,
		trigger:  trigger.New(inj, cfg.Cooldown),
	}
	span.SetAttr("run_id", r.id)
	e.run = r
	e.setState(Running)

	trace.Logger(runCtx).Info("detection started",
		"run_id", r.id, "strategy", det.Name(), "grid", cfg.Grid.Name(),
		"interval", cfg.ScanInterval, "cooldown", cfg.Cooldown, "method", cfg.Input.Method)

	go func() {
		defer span.End()
		e.loop(runCtx, r, det, st)
		trace.Logger(runCtx).Info("detection finished", "span", span)
	}()
	return nil
}

// Stop ends the run cleanly and waits for resources to be released.
func (e *Engine) Stop() error { return e.halt(false) }

// EmergencyStop ends the run immediately, including from Recovering.
func (e *Engine) EmergencyStop() error { return e.halt(true) }

func (e *Engine) halt(emergency bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.run
	if r == nil || !e.State().Active() {
		return apperrors.New(apperrors.NotRunning, "engine not running")
	}
	if emergency {
		r.emergency.Store(true)
		if e.deps.Cue != nil {
			e.deps.Cue.Emergency()
		}
	}
	r.cancel()
	<-r.done
	e.run = nil
	return nil
}

// Wait blocks until the current run, if any, has exited.
func (e *Engine) Wait() {
	e.mu.Lock()
	r := e.run
	e.mu.Unlock()
	if r != nil {
		<-r.done
	}
}

// Arm toggles whether detections fire clicks. Scanning continues while disarmed.
func (e *Engine) Arm(on bool) {
	if e.armed.Load() == on {
		return
	}
	e.armed.Store(on)
	e.events.Emit(Event{Time: e.deps.Now(), Kind: EventArmed, Message: boolWord(on, "armed", "disarmed")})
	if e.deps.Cue != nil {
		e.deps.Cue.Armed(on)
	}
}

// ToggleArmed flips the armed flag and returns the new value.
func (e *Engine) ToggleArmed() bool {
	on := !e.armed.Load()
	e.Arm(on)
	return on
}

// Armed reports whether detections fire clicks.
func (e *Engine) Armed() bool { return e.armed.Load() }

// Status is what the control plane reports.
type Status struct {
	State string         `json:"state"`
	Armed bool           `json:"armed"`
	Stats stats.Snapshot `json:"stats"`
}

// Snapshot returns the current status.
func (e *Engine) Snapshot() Status {
	return Status{
		State: e.State().String(),
		Armed: e.Armed(),
		Stats: e.stats.Get().Snapshot(e.deps.Now()),
	}
}

// ResetStats zeroes the counters without interrupting a run.
func (e *Engine) ResetStats() {
	now := e.deps.Now()
	e.stats.Get().Reset(now)
	e.events.Emit(Event{Time: now, Kind: EventReset, Message: "statistics reset"})
}

// Events returns the live event channel.
func (e *Engine) Events() <-chan Event { return e.events.Events() }

// RecentEvents returns the retained event log.
func (e *Engine) RecentEvents() []Event { return e.events.Recent() }

func (e *Engine) acquireReader(ctx context.Context, cfg resilience.RetryConfig) (screen.Reader, error) {
	var r screen.Reader
	err := resilience.Retry(ctx, cfg, func() error {
		var err error
		r, err = e.deps.OpenReader()
		return err
	})
	return r, err
}

func (e *Engine) acquireInjector(ctx context.Context, opts input.Options, cfg resilience.RetryConfig) (input.Injector, error) {
	var inj input.Injector
	err := resilience.Retry(ctx, cfg, func() error {
		var err error
		inj, err = e.deps.OpenInjector(opts)
		return err
	})
	return inj, err
}

func closeQuietly(ctx context.Context, what string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			trace.Logger(ctx).Warn("release panicked", "resource", what, "panic", p)
		}
	}()
	if err := fn(); err != nil {
		trace.Logger(ctx).Warn("release failed", "resource", what, "error", err)
	}
}

func boolWord(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
