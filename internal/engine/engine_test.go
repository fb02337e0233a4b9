package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/pixel-trigger/internal/detect"
	apperrors "github.com/GriffinCanCode/pixel-trigger/internal/errors"
	"github.com/GriffinCanCode/pixel-trigger/internal/grid"
	"github.com/GriffinCanCode/pixel-trigger/internal/input"
	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
	"github.com/GriffinCanCode/pixel-trigger/internal/screen"
)

// failingReader errors on every read.
type failingReader struct {
	err    error
	closed atomic.Bool
}

func (f *failingReader) ReadPixel(int, int) (pixel.Color, error) { return pixel.Color{}, f.err }
func (f *failingReader) Bounds() image.Rectangle                 { return image.Rect(0, 0, 100, 100) }
func (f *failingReader) Close() error                            { f.closed.Store(true); return nil }

type countingInjector struct {
	mu     sync.Mutex
	clicks int
	err    error
	closed bool
}

func (c *countingInjector) Click(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.clicks++
	return nil
}

func (c *countingInjector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *countingInjector) Clicks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clicks
}

type recordingCue struct {
	armed     []bool
	emergency atomic.Int32
}

func (r *recordingCue) Armed(on bool) { r.armed = append(r.armed, on) }
func (r *recordingCue) Emergency()    { r.emergency.Add(1) }

func purpleScreen() *screen.ImageReader {
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.SetRGBA(x, y, color.RGBA{128, 0, 128, 255})
		}
	}
	return screen.FromImage(img)
}

func fastSettings() Settings {
	s := DefaultSettings()
	s.ScanInterval = time.Millisecond
	s.ErrorBackoff = time.Millisecond
	s.RecoveryBackoff = 5 * time.Millisecond
	s.Cooldown = 0
	s.Input = input.Options{Method: input.MethodHardware}
	return s
}

func newTestEngine(t *testing.T, open screen.Opener, inj input.Injector, cue Cue) *Engine {
	t.Helper()
	e := New(Deps{
		OpenReader:   open,
		OpenInjector: func(input.Options) (input.Injector, error) { return inj, nil },
		Cue:          cue,
	})
	require.NoError(t, e.Configure(fastSettings()))
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func TestDetectsAndFires(t *testing.T) {
	inj := &countingInjector{}
	e := newTestEngine(t, func() (screen.Reader, error) { return purpleScreen(), nil }, inj, nil)

	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, Running, e.State())

	require.Eventually(t, func() bool { return inj.Clicks() >= 3 }, 2*time.Second, 5*time.Millisecond)
	snap := e.Snapshot()
	assert.Positive(t, snap.Stats.Detections)
	assert.Positive(t, snap.Stats.Actions)
	assert.NotEmpty(t, snap.Stats.RunID)
	assert.Contains(t, snap.Stats.RecentColors, "#800080")

	require.NoError(t, e.Stop())
	assert.Equal(t, Idle, e.State())
	assert.True(t, inj.closed)
}

func TestDisarmedScansWithoutFiring(t *testing.T) {
	inj := &countingInjector{}
	cue := &recordingCue{}
	e := newTestEngine(t, func() (screen.Reader, error) { return purpleScreen(), nil }, inj, cue)
	e.Arm(false)

	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool { return e.Snapshot().Stats.Detections >= 5 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, inj.Clicks())

	assert.True(t, e.ToggleArmed())
	require.Eventually(t, func() bool { return inj.Clicks() > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{false, true}, cue.armed)
}

func TestIterationFailuresNeverStopTheLoop(t *testing.T) {
	reader := &failingReader{err: errors.New("gdi exploded")}
	e := newTestEngine(t, func() (screen.Reader, error) { return reader, nil }, &countingInjector{}, nil)

	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool { return e.Snapshot().Stats.Errors >= 10 }, 3*time.Second, 5*time.Millisecond)
	first := e.Snapshot().Stats.Errors
	assert.Equal(t, Running, e.State())

	require.Eventually(t, func() bool { return e.Snapshot().Stats.Errors > first }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, Running, e.State())
	assert.Zero(t, e.Snapshot().Stats.Recoveries)

	require.NoError(t, e.Stop())
	assert.Equal(t, Idle, e.State())
	assert.True(t, reader.closed.Load())
}

func TestPanickingReaderIsAnIterationFailure(t *testing.T) {
	open := func() (screen.Reader, error) { return panicReader{}, nil }
	e := newTestEngine(t, open, &countingInjector{}, nil)

	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool { return e.Snapshot().Stats.Errors >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, e.State().Active())
}

type panicReader struct{}

func (panicReader) ReadPixel(int, int) (pixel.Color, error) { panic("nil handle") }
func (panicReader) Bounds() image.Rectangle                 { return image.Rect(0, 0, 10, 10) }
func (panicReader) Close() error                            { return nil }

func TestResourceLostRecoversAndResumes(t *testing.T) {
	var opens atomic.Int32
	lost := &failingReader{err: screen.ErrResourceLost}
	open := func() (screen.Reader, error) {
		if opens.Add(1) == 1 {
			return lost, nil
		}
		return purpleScreen(), nil
	}
	var states []State
	var mu sync.Mutex
	e := newTestEngine(t, open, &countingInjector{}, nil)
	e.OnStateChange(func(_, to State) {
		mu.Lock()
		states = append(states, to)
		mu.Unlock()
	})

	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool {
		s := e.Snapshot().Stats
		return s.Recoveries == 1 && s.Detections > 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Running, e.State())
	assert.True(t, lost.closed.Load(), "lost reader is released before reacquiring")

	mu.Lock()
	assert.Equal(t, []State{Running, Recovering, Running}, states[:3])
	mu.Unlock()
}

// lostInjector reports a dead handle on every click.
type lostInjector struct{ closed atomic.Bool }

func (l *lostInjector) Click(context.Context) error {
	return fmt.Errorf("SendInput: %w", input.ErrResourceLost)
}
func (l *lostInjector) Close() error { l.closed.Store(true); return nil }

func TestLostInjectorIsReacquired(t *testing.T) {
	var opens atomic.Int32
	lost := &lostInjector{}
	good := &countingInjector{}
	e := New(Deps{
		OpenReader: func() (screen.Reader, error) { return purpleScreen(), nil },
		OpenInjector: func(input.Options) (input.Injector, error) {
			if opens.Add(1) == 1 {
				return lost, nil
			}
			return good, nil
		},
	})
	require.NoError(t, e.Configure(fastSettings()))
	t.Cleanup(func() { _ = e.Stop() })

	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool { return good.Clicks() >= 2 }, 2*time.Second, 5*time.Millisecond)

	snap := e.Snapshot().Stats
	assert.Equal(t, int64(1), snap.Recoveries)
	assert.Zero(t, snap.ActionFailures)
	assert.Zero(t, snap.Errors)
	assert.True(t, lost.closed.Load(), "lost injector is released before reopening")
	assert.Equal(t, int32(2), opens.Load())
	assert.Equal(t, Running, e.State())

	require.NoError(t, e.Stop())
	assert.True(t, good.closed)
}

func TestTargetlessStrategiesRecordNoNearMisses(t *testing.T) {
	e := newTestEngine(t, func() (screen.Reader, error) { return purpleScreen(), nil }, &countingInjector{}, nil)
	s := fastSettings()
	s.Strategy = detect.StrategyChannel
	s.Preset = "green"
	require.NoError(t, e.Configure(s))

	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool { return e.Snapshot().Stats.Scans >= 10 }, 2*time.Second, 5*time.Millisecond)
	snap := e.Snapshot().Stats
	assert.Zero(t, snap.Detections)
	assert.Zero(t, snap.NearMisses)
}

func TestRecoveryKeepsTryingWhenReacquireFails(t *testing.T) {
	var opens atomic.Int32
	open := func() (screen.Reader, error) {
		if opens.Add(1) == 1 {
			return &failingReader{err: screen.ErrResourceLost}, nil
		}
		return nil, errors.New("display gone")
	}
	e := newTestEngine(t, open, &countingInjector{}, nil)

	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool { return e.Snapshot().Stats.Recoveries >= 3 }, 3*time.Second, 5*time.Millisecond)
	assert.True(t, e.State().Active())
}

func TestFailedClicksAreCountedAndRetried(t *testing.T) {
	inj := &countingInjector{err: errors.New("rejected")}
	e := newTestEngine(t, func() (screen.Reader, error) { return purpleScreen(), nil }, inj, nil)

	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool { return e.Snapshot().Stats.ActionFailures >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, e.Snapshot().Stats.Errors)
	assert.True(t, e.State().Active())
}

func TestEmergencyStop(t *testing.T) {
	cue := &recordingCue{}
	reader := &failingReader{err: screen.ErrResourceLost}
	s := fastSettings()
	s.RecoveryBackoff = time.Hour
	e := New(Deps{
		OpenReader:   func() (screen.Reader, error) { return reader, nil },
		OpenInjector: func(input.Options) (input.Injector, error) { return &countingInjector{}, nil },
		Cue:          cue,
	})
	require.NoError(t, e.Configure(s))

	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool { return e.State() == Recovering }, 2*time.Second, time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- e.EmergencyStop() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("emergency stop not observed during recovery backoff")
	}
	assert.Equal(t, Stopped, e.State())
	assert.EqualValues(t, 1, cue.emergency.Load())

	require.NoError(t, e.Start(context.Background()), "a stopped engine can start again")
	require.NoError(t, e.Stop())
}

func TestLifecycleErrors(t *testing.T) {
	e := newTestEngine(t, func() (screen.Reader, error) { return purpleScreen(), nil }, &countingInjector{}, nil)

	assert.True(t, apperrors.IsCode(e.Stop(), apperrors.NotRunning))

	require.NoError(t, e.Start(context.Background()))
	assert.True(t, apperrors.IsCode(e.Start(context.Background()), apperrors.AlreadyRunning))
	require.NoError(t, e.Stop())
	assert.True(t, apperrors.IsCode(e.EmergencyStop(), apperrors.NotRunning))
}

func TestStartFailsWhenPlatformUnavailable(t *testing.T) {
	e := New(Deps{
		OpenReader:   func() (screen.Reader, error) { return nil, apperrors.New(apperrors.ConfigInvalid, "no display") },
		OpenInjector: func(input.Options) (input.Injector, error) { return &countingInjector{}, nil },
	})
	require.NoError(t, e.Configure(fastSettings()))

	err := e.Start(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.PlatformUnavailable))
	assert.Equal(t, Idle, e.State())

	reader := purpleScreen()
	e = New(Deps{
		OpenReader:   func() (screen.Reader, error) { return reader, nil },
		OpenInjector: func(input.Options) (input.Injector, error) { return nil, input.ErrUnsupported },
	})
	require.NoError(t, e.Configure(fastSettings()))
	err = e.Start(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.PlatformUnavailable))
	assert.ErrorIs(t, err, input.ErrUnsupported)
	_, rerr := reader.ReadPixel(0, 0)
	assert.ErrorIs(t, rerr, screen.ErrResourceLost, "reader released when injector fails")
}

func TestConfigureRejectsInvalid(t *testing.T) {
	e := New(Deps{})
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"tolerance", func(s *Settings) { s.Tolerance = 1.2 }},
		{"interval", func(s *Settings) { s.ScanInterval = -time.Millisecond }},
		{"cooldown", func(s *Settings) { s.Cooldown = -time.Second }},
		{"grid", func(s *Settings) { s.Grid = grid.Grid{} }},
		{"method", func(s *Settings) { s.Input.Method = "psychic" }},
		{"strategy", func(s *Settings) { s.Strategy = "vibes" }},
		{"quorum", func(s *Settings) { s.MinPixels = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := e.Configure(s)
			assert.True(t, apperrors.IsCode(err, apperrors.ConfigInvalid), "got %v", err)
		})
	}
	assert.Equal(t, DefaultSettings().Tolerance, e.Settings().Tolerance)
}

func TestResetStatsAndEvents(t *testing.T) {
	e := newTestEngine(t, func() (screen.Reader, error) { return purpleScreen(), nil }, &countingInjector{}, nil)
	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool { return e.Snapshot().Stats.Scans > 5 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, e.Stop())

	e.ResetStats()
	assert.Zero(t, e.Snapshot().Stats.Scans)

	var kinds []string
	for _, ev := range e.RecentEvents() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, EventState)
	assert.Contains(t, kinds, EventAction)
	assert.Equal(t, EventReset, kinds[len(kinds)-1])
}

func TestAccumulateStatsAcrossRuns(t *testing.T) {
	e := newTestEngine(t, func() (screen.Reader, error) { return purpleScreen(), nil }, &countingInjector{}, nil)
	s := fastSettings()
	s.AccumulateStats = true
	require.NoError(t, e.Configure(s))

	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool { return e.Snapshot().Stats.Scans > 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, e.Stop())
	before := e.Snapshot().Stats.Scans

	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Stop())
	assert.GreaterOrEqual(t, e.Snapshot().Stats.Scans, before)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "recovering", Recovering.String())
	assert.False(t, Stopped.Active())
	assert.True(t, Recovering.Active())
}
