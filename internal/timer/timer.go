// Package timer provides cancellable timers scoped to one owner, typically a
// live session. StopAll retires the scope: pending timers are cancelled and
// later registrations never fire.
package timer

import (
	"sync"
	"time"
)

// Timer is a scheduled callback.
type Timer interface {
	// Stop cancels the timer and reports whether it was still pending.
	Stop() bool
}

// Scheduler creates timers in one cancellation scope.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
	Every(d time.Duration, fn func()) Timer
	StopAll()
}

// Group is a Scheduler backed by the runtime timers.
type Group struct {
	mu      sync.Mutex
	next    uint64
	timers  map[uint64]*entry
	stopped bool
}

type entry struct {
	group  *Group
	id     uint64
	timer  *time.Timer
	ticker *time.Ticker
	quit   chan struct{}
	once   sync.Once
}

func NewGroup() *Group {
	return &Group{timers: make(map[uint64]*entry)}
}

// AfterFunc runs fn once after d unless cancelled first.
func (g *Group) AfterFunc(d time.Duration, fn func()) Timer {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.newEntryLocked()
	if e == nil {
		return stoppedTimer{}
	}
	e.timer = time.AfterFunc(d, func() {
		if g.remove(e.id) {
			fn()
		}
	})
	return e
}

// Every runs fn every d until cancelled.
func (g *Group) Every(d time.Duration, fn func()) Timer {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.newEntryLocked()
	if e == nil || d <= 0 {
		if e != nil {
			delete(g.timers, e.id)
		}
		return stoppedTimer{}
	}
	e.ticker = time.NewTicker(d)
	e.quit = make(chan struct{})
	go func() {
		for {
			select {
			case <-e.ticker.C:
				fn()
			case <-e.quit:
				return
			}
		}
	}()
	return e
}

// StopAll cancels every pending timer and rejects future ones.
func (g *Group) StopAll() {
	g.mu.Lock()
	entries := make([]*entry, 0, len(g.timers))
	for _, e := range g.timers {
		entries = append(entries, e)
	}
	g.timers = make(map[uint64]*entry)
	g.stopped = true
	g.mu.Unlock()

	for _, e := range entries {
		e.cancel()
	}
}

// Pending returns the number of live timers.
func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}

func (g *Group) newEntryLocked() *entry {
	if g.stopped {
		return nil
	}
	g.next++
	e := &entry{group: g, id: g.next}
	g.timers[e.id] = e
	return e
}

func (g *Group) remove(id uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.timers[id]; !ok {
		return false
	}
	delete(g.timers, id)
	return true
}

func (e *entry) Stop() bool {
	pending := e.group.remove(e.id)
	e.cancel()
	return pending
}

func (e *entry) cancel() {
	e.once.Do(func() {
		if e.timer != nil {
			e.timer.Stop()
		}
		if e.ticker != nil {
			e.ticker.Stop()
			close(e.quit)
		}
	})
}

type stoppedTimer struct{}

func (stoppedTimer) Stop() bool { return false }
