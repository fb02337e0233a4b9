// Package stats keeps run counters and rolling timing windows. Writers are the
// detection loop only; readers take a Snapshot.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
	"github.com/GriffinCanCode/pixel-trigger/internal/syncx"
)

// Window defaults.
const (
	DefaultScanWindow  = 100
	DefaultColorWindow = 50
	// NearMissFloor is the average similarity above which an undetected scan
	// counts as a near miss. Callers pass a zero average for strategies that do
	// not score against the target color, so those never record near misses.
	NearMissFloor = 0.3
)

// Stats holds counters for the current run.
type Stats struct {
	detections     atomic.Int64
	actions        atomic.Int64
	actionFailures atomic.Int64
	errors         atomic.Int64
	recoveries     atomic.Int64
	nearMisses     atomic.Int64
	scans          atomic.Int64

	scanTimes *syncx.Ring[time.Duration]
	colors    *syncx.Ring[pixel.Color]

	mu      sync.RWMutex
	runID   string
	started time.Time
	stopped time.Time
	// prior is the elapsed time of finished runs sharing these counters.
	prior time.Duration
}

// New creates empty statistics with the given window capacities.
func New(scanWindow, colorWindow int) *Stats {
	if scanWindow < 1 {
		scanWindow = DefaultScanWindow
	}
	if colorWindow < 1 {
		colorWindow = DefaultColorWindow
	}
	return &Stats{
		scanTimes: syncx.NewRing[time.Duration](scanWindow),
		colors:    syncx.NewRing[pixel.Color](colorWindow),
	}
}

// Begin marks the start of a run and assigns a fresh run ID. A finished run's
// time is carried into Elapsed so rates stay correct when counters accumulate.
func (s *Stats) Begin(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started.IsZero() && !s.stopped.IsZero() {
		s.prior += s.stopped.Sub(s.started)
	}
	s.runID = uuid.NewString()
	s.started = now
	s.stopped = time.Time{}
	return s.runID
}

// End marks the run finished; Elapsed freezes at now.
func (s *Stats) End(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started.IsZero() {
		s.stopped = now
	}
}

// ObserveScan records one completed scan.
func (s *Stats) ObserveScan(d time.Duration, detected bool, average float64) {
	s.scans.Add(1)
	s.scanTimes.Push(d)
	switch {
	case detected:
		s.detections.Add(1)
	case average > NearMissFloor:
		s.nearMisses.Add(1)
	}
}

// ObserveColor records a sampled color for the recent-colors window.
func (s *Stats) ObserveColor(c pixel.Color) { s.colors.Push(c) }

// IncAction counts a delivered click.
func (s *Stats) IncAction() { s.actions.Add(1) }

// IncActionFailure counts a rejected click.
func (s *Stats) IncActionFailure() { s.actionFailures.Add(1) }

// IncError counts an abandoned iteration and returns the new total.
func (s *Stats) IncError() int64 { return s.errors.Add(1) }

// IncRecovery counts a recovery episode and returns the new total.
func (s *Stats) IncRecovery() int64 { return s.recoveries.Add(1) }

// Reset zeroes every counter and window along with the elapsed time. The run ID
// is kept.
func (s *Stats) Reset(now time.Time) {
	for _, c := range []*atomic.Int64{
		&s.detections, &s.actions, &s.actionFailures, &s.errors,
		&s.recoveries, &s.nearMisses, &s.scans,
	} {
		c.Store(0)
	}
	s.scanTimes.Reset()
	s.colors.Reset()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prior = 0
	switch {
	case s.started.IsZero():
	case s.stopped.IsZero():
		s.started = now
	default:
		s.started = s.stopped
	}
}

// Snapshot is a point-in-time copy safe to hand to other goroutines.
type Snapshot struct {
	RunID   string    `json:"run_id"`
	Started time.Time `json:"started"`
	// Elapsed covers every run counted in these statistics.
	Elapsed        time.Duration `json:"elapsed_ns"`
	Detections     int64         `json:"detections"`
	Actions        int64         `json:"actions"`
	ActionFailures int64         `json:"action_failures"`
	Errors         int64         `json:"errors"`
	Recoveries     int64         `json:"recoveries"`
	NearMisses     int64         `json:"near_misses"`
	Scans          int64         `json:"scans"`
	AvgScan        time.Duration `json:"avg_scan_ns"`
	// DetectionRate is detections per second of elapsed time.
	DetectionRate float64 `json:"detection_rate"`
	// Accuracy is detections / (detections + near misses), in [0,1].
	Accuracy     float64  `json:"accuracy"`
	RecentColors []string `json:"recent_colors,omitempty"`
}

// Snapshot copies the current statistics. now is used for the elapsed time of a
// run still in progress.
func (s *Stats) Snapshot(now time.Time) Snapshot {
	s.mu.RLock()
	snap := Snapshot{RunID: s.runID, Started: s.started, Elapsed: s.prior}
	switch {
	case s.started.IsZero():
	case s.stopped.IsZero():
		snap.Elapsed += now.Sub(s.started)
	default:
		snap.Elapsed += s.stopped.Sub(s.started)
	}
	s.mu.RUnlock()

	snap.Detections = s.detections.Load()
	snap.Actions = s.actions.Load()
	snap.ActionFailures = s.actionFailures.Load()
	snap.Errors = s.errors.Load()
	snap.Recoveries = s.recoveries.Load()
	snap.NearMisses = s.nearMisses.Load()
	snap.Scans = s.scans.Load()

	if times := s.scanTimes.Snapshot(); len(times) > 0 {
		var sum time.Duration
		for _, d := range times {
			sum += d
		}
		snap.AvgScan = sum / time.Duration(len(times))
	}
	if secs := snap.Elapsed.Seconds(); secs > 0 {
		snap.DetectionRate = float64(snap.Detections) / secs
	}
	if total := snap.Detections + snap.NearMisses; total > 0 {
		snap.Accuracy = float64(snap.Detections) / float64(total)
	}
	for _, c := range s.colors.Snapshot() {
		snap.RecentColors = append(snap.RecentColors, c.Hex())
	}
	return snap
}
