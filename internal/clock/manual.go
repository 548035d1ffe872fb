package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a clock that only moves when Advance is called. Due timers fire
// synchronously on the caller's goroutine, ordered by due time and then by
// creation order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers []*manualTimer
}

// NewManual returns a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Every registers a periodic timer; the first call is due one period from now.
func (m *Manual) Every(period time.Duration, fn func()) Timer {
	if period <= 0 {
		period = time.Nanosecond
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTimer{
		owner:  m,
		id:     m.nextID,
		period: period,
		next:   m.now.Add(period),
		fn:     fn,
	}
	m.nextID++
	m.timers = append(m.timers, t)
	return t
}

// Advance moves time forward by d, firing every timer that becomes due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		due := m.nextDueLocked(target)
		if due == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = due.next
		due.next = due.next.Add(due.period)
		fn := due.fn
		m.mu.Unlock()

		fn()
	}
}

// ActiveTimers reports how many timers have not been stopped.
func (m *Manual) ActiveTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manual) nextDueLocked(target time.Time) *manualTimer {
	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		a, b := m.timers[i], m.timers[j]
		if a.next.Equal(b.next) {
			return a.id < b.id
		}
		return a.next.Before(b.next)
	})
	first := m.timers[0]
	if first.next.After(target) {
		return nil
	}
	return first
}

func (m *Manual) remove(t *manualTimer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, candidate := range m.timers {
		if candidate == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

type manualTimer struct {
	owner  *Manual
	id     int
	period time.Duration
	next   time.Time
	fn     func()
}

func (t *manualTimer) Stop() {
	t.owner.remove(t)
}
