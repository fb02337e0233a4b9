package syncx

import "sync/atomic"

// Flag is an atomic boolean with toggle support.
type Flag struct{ v atomic.Bool }

// Load reports the current value.
func (f *Flag) Load() bool { return f.v.Load() }

// Store sets the value.
func (f *Flag) Store(b bool) { f.v.Store(b) }

// Toggle flips the value and returns the new one.
func (f *Flag) Toggle() bool {
	for {
		old := f.v.Load()
		if f.v.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
