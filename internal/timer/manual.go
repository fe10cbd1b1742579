package timer

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance instead of the wall clock.
// It doubles as the clock of the owner under test via Now.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	next    uint64
	timers  map[uint64]*manualTimer
	stopped bool
}

type manualTimer struct {
	m        *Manual
	id       uint64
	due      time.Time
	interval time.Duration
	fn       func()
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start, timers: make(map[uint64]*manualTimer)}
}

// Now returns the manual clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	return m.add(d, 0, fn)
}

func (m *Manual) Every(d time.Duration, fn func()) Timer {
	if d <= 0 {
		return stoppedTimer{}
	}
	return m.add(d, d, fn)
}

func (m *Manual) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = make(map[uint64]*manualTimer)
	m.stopped = true
}

// Pending returns the number of live timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance moves the clock forward and runs due callbacks in due order on the
// calling goroutine.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		t := m.earliestDueLocked(target)
		if t == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = t.due
		if t.interval > 0 {
			t.due = t.due.Add(t.interval)
		} else {
			delete(m.timers, t.id)
		}
		fn := t.fn
		m.mu.Unlock()
		fn()
	}
}

func (m *Manual) add(d, interval time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return stoppedTimer{}
	}
	m.next++
	t := &manualTimer{m: m, id: m.next, due: m.now.Add(d), interval: interval, fn: fn}
	m.timers[t.id] = t
	return t
}

func (m *Manual) earliestDueLocked(target time.Time) *manualTimer {
	due := make([]*manualTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if !t.due.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].due.Equal(due[j].due) {
			return due[i].due.Before(due[j].due)
		}
		return due[i].id < due[j].id
	})
	return due[0]
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if _, ok := t.m.timers[t.id]; !ok {
		return false
	}
	delete(t.m.timers, t.id)
	return true
}
