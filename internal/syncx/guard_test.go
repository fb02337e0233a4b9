package syncx

import (
	"sync"
	"testing"
)

func TestGuardGetSet(t *testing.T) {
	g := NewGuard(42)

	if got := g.Get(); got != 42 {
		t.Errorf("Get() = %d, want 42", got)
	}

	g.Set(100)
	if got := g.Get(); got != 100 {
		t.Errorf("Get() after Set = %d, want 100", got)
	}
}

func TestGuardSwap(t *testing.T) {
	g := NewGuard("hello")

	old := g.Swap("world")
	if old != "hello" {
		t.Errorf("Swap returned %q, want %q", old, "hello")
	}
	if got := g.Get(); got != "world" {
		t.Errorf("Get() after Swap = %q, want %q", got, "world")
	}
}

func TestGuardReadWrite(t *testing.T) {
	type counter struct{ value int }
	g := NewGuard(counter{})

	g.Write(func(c *counter) { c.value = 42 })

	var seen int
	g.Read(func(c counter) { seen = c.value })
	if seen != 42 {
		t.Errorf("Read saw %d, want 42", seen)
	}
}

func TestGuardConcurrent(t *testing.T) {
	g := NewGuard(0)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			g.Write(func(v *int) { *v++ })
		}()
		go func() {
			defer wg.Done()
			_ = g.Get()
		}()
	}
	wg.Wait()

	if got := g.Get(); got != 100 {
		t.Errorf("Get() after concurrent writes = %d, want 100", got)
	}
}

func TestRingKeepsMostRecent(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	got := r.Snapshot()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Snapshot() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRingPartialAndReset(t *testing.T) {
	r := NewRing[string](4)
	r.Push("a")
	r.Push("b")

	if r.Len() != 2 || r.Cap() != 4 {
		t.Errorf("Len/Cap = %d/%d, want 2/4", r.Len(), r.Cap())
	}
	if s := r.Snapshot(); s[0] != "a" || s[1] != "b" {
		t.Errorf("Snapshot() = %v, want [a b]", s)
	}

	r.Reset()
	if r.Len() != 0 || len(r.Snapshot()) != 0 {
		t.Errorf("ring not empty after Reset")
	}
}

func TestRingZeroSize(t *testing.T) {
	r := NewRing[int](0)
	r.Push(1)
	r.Push(2)
	if s := r.Snapshot(); len(s) != 1 || s[0] != 2 {
		t.Errorf("Snapshot() = %v, want [2]", s)
	}
}

func TestFlagToggle(t *testing.T) {
	var f Flag
	if f.Load() {
		t.Fatal("zero Flag should be false")
	}
	if !f.Toggle() {
		t.Error("first Toggle should return true")
	}
	if f.Toggle() {
		t.Error("second Toggle should return false")
	}
	f.Store(true)
	if !f.Load() {
		t.Error("Load after Store(true) = false")
	}
}
