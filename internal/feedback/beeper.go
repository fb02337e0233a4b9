// Package feedback plays short audio cues for operator actions.
package feedback

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Cue tones.
const (
	ArmHz       = 800
	DisarmHz    = 400
	EmergencyHz = 1000

	ToneLength      = 100 * time.Millisecond
	EmergencyLength = 80 * time.Millisecond
	EmergencyGap    = 50 * time.Millisecond
	EmergencyRepeat = 3

	SampleRate = 44100
	QueueLen   = 8
	fade       = 5 * time.Millisecond
)

// Sink plays mono float32 PCM at SampleRate.
type Sink interface {
	Play(samples []float32) error
	Close() error
}

// Beeper queues tones and plays them on its own goroutine so callers never block.
type Beeper struct {
	open  func() (Sink, error)
	queue chan []float32

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// New creates a beeper backed by the default output device. A disabled beeper
// accepts cues and drops them.
func New(enabled bool) *Beeper {
	if !enabled {
		return &Beeper{}
	}
	return NewWithSink(openPortAudio)
}

// NewWithSink creates a beeper with a custom output.
func NewWithSink(open func() (Sink, error)) *Beeper {
	return &Beeper{open: open, queue: make(chan []float32, QueueLen)}
}

// Start opens the output and begins playing queued cues until ctx ends. If the
// device cannot be opened the beeper stays silent.
func (b *Beeper) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open == nil || b.started {
		return
	}
	sink, err := b.open()
	if err != nil {
		slog.Warn("audio cues unavailable", "error", err)
		return
	}
	b.started = true
	b.done = make(chan struct{})
	go b.play(ctx, sink)
}

func (b *Beeper) play(ctx context.Context, sink Sink) {
	defer close(b.done)
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Debug("audio sink close failed", "error", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case pcm := <-b.queue:
			if err := sink.Play(pcm); err != nil {
				slog.Debug("audio cue failed", "error", err)
			}
		}
	}
}

// Wait blocks until the playback goroutine exits.
func (b *Beeper) Wait() {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Armed plays the arm or disarm tone.
func (b *Beeper) Armed(on bool) {
	hz := DisarmHz
	if on {
		hz = ArmHz
	}
	b.enqueue(Tone(hz, ToneLength, SampleRate))
}

// Emergency plays a short triple tone.
func (b *Beeper) Emergency() {
	tone := Tone(EmergencyHz, EmergencyLength, SampleRate)
	gap := make([]float32, frames(EmergencyGap, SampleRate))
	pcm := make([]float32, 0, EmergencyRepeat*(len(tone)+len(gap)))
	for i := 0; i < EmergencyRepeat; i++ {
		pcm = append(pcm, tone...)
		pcm = append(pcm, gap...)
	}
	b.enqueue(pcm)
}

func (b *Beeper) enqueue(pcm []float32) {
	if b.queue == nil {
		return
	}
	select {
	case b.queue <- pcm:
	default:
	}
}

// Tone synthesizes a sine at hz with short linear fades at both ends.
func Tone(hz int, d time.Duration, rate int) []float32 {
	n := frames(d, rate)
	ramp := min(frames(fade, rate), n/2)
	out := make([]float32, n)
	for i := range out {
		amp := 0.3
		switch {
		case i < ramp:
			amp *= float64(i) / float64(ramp)
		case i >= n-ramp:
			amp *= float64(n-1-i) / float64(ramp)
		}
		out[i] = float32(amp * math.Sin(2*math.Pi*float64(hz)*float64(i)/float64(rate)))
	}
	return out
}

func frames(d time.Duration, rate int) int {
	return int(d.Seconds() * float64(rate))
}
