package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestGroupAfterFuncFires(t *testing.T) {
	g := NewGroup()
	fired := make(chan struct{})
	g.AfterFunc(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}
	if g.Pending() != 0 {
		t.Fatalf("expected fired timer to be removed, pending=%d", g.Pending())
	}
}

func TestGroupStopAllCancelsPending(t *testing.T) {
	g := NewGroup()
	var calls atomic.Int32
	g.AfterFunc(20*time.Millisecond, func() { calls.Add(1) })
	g.Every(5*time.Millisecond, func() { calls.Add(1) })

	g.StopAll()
	if g.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", g.Pending())
	}
	g.AfterFunc(time.Millisecond, func() { calls.Add(1) })

	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("expected no callbacks after StopAll, got %d", n)
	}
}

func TestGroupStopSingleTimer(t *testing.T) {
	g := NewGroup()
	tm := g.AfterFunc(time.Hour, func() {})
	if !tm.Stop() {
		t.Fatalf("expected pending timer to report stopped")
	}
	if tm.Stop() {
		t.Fatalf("expected second stop to report false")
	}
}

func TestManualAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start)

	var order []string
	m.AfterFunc(3*time.Second, func() { order = append(order, "once") })
	tick := m.Every(time.Second, func() { order = append(order, "tick") })

	m.Advance(2 * time.Second)
	if len(order) != 2 {
		t.Fatalf("expected two ticks, got %v", order)
	}
	m.Advance(time.Second)
	if len(order) != 4 || order[2] != "once" {
		t.Fatalf("expected single-shot at 3s, got %v", order)
	}
	tick.Stop()
	m.Advance(10 * time.Second)
	if len(order) != 4 {
		t.Fatalf("expected no callbacks after stop, got %v", order)
	}
	if got := m.Now(); !got.Equal(start.Add(13 * time.Second)) {
		t.Fatalf("unexpected clock %v", got)
	}
}

func TestManualStopAll(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := false
	m.AfterFunc(time.Second, func() { fired = true })
	m.StopAll()
	m.AfterFunc(time.Second, func() { fired = true })
	m.Advance(time.Minute)
	if fired || m.Pending() != 0 {
		t.Fatalf("expected retired scheduler to stay silent")
	}
}
