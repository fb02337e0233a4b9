package engine

import (
	"time"

	"github.com/GriffinCanCode/pixel-trigger/internal/syncx"
)

// Event kinds.
const (
	EventState    = "state"
	EventAction   = "action"
	EventFailure  = "action_failed"
	EventError    = "error"
	EventRecovery = "recovery"
	EventArmed    = "armed"
	EventReset    = "stats_reset"
)

// Event log sizing.
const (
	EventLogSize   = 100
	EventBufferLen = 64
)

// Event is one entry in the run log.
type Event struct {
	Time    time.Time      `json:"time"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// EventLog keeps the most recent events and fans them out on a channel.
type EventLog struct {
	recent *syncx.Ring[Event]
	ch     chan Event
}

// NewEventLog creates a log keeping size events with a buffered channel of buffer.
func NewEventLog(size, buffer int) *EventLog {
	return &EventLog{recent: syncx.NewRing[Event](size), ch: make(chan Event, buffer)}
}

// Emit records ev and offers it to the channel without blocking.
func (l *EventLog) Emit(ev Event) {
	l.recent.Push(ev)
	select {
	case l.ch <- ev:
	default:
	}
}

// Recent returns retained events oldest first.
func (l *EventLog) Recent() []Event { return l.recent.Snapshot() }

// Events returns the live channel. Slow readers miss events rather than stall the loop.
func (l *EventLog) Events() <-chan Event { return l.ch }
