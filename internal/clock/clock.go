package clock

import (
	"sync"
	"time"
)

// Timer is a cancellable periodic callback.
type Timer interface {
	// Stop prevents future callbacks. It is safe to call from inside the
	// callback and more than once.
	Stop()
}

// Clock provides time and periodic timers.
// This interface allows time to be driven manually in tests.
type Clock interface {
	Now() time.Time
	Every(period time.Duration, fn func()) Timer
}

// Real uses the system clock. Each timer runs its callbacks on its own goroutine.
type Real struct{}

// Now returns the current system time.
func (Real) Now() time.Time {
	return time.Now()
}

// Every calls fn once per period until the timer is stopped.
func (Real) Every(period time.Duration, fn func()) Timer {
	t := &realTimer{stop: make(chan struct{})}
	go t.run(period, fn)
	return t
}

type realTimer struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func (t *realTimer) run(period time.Duration, fn func()) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			select {
			case <-t.stop:
				return
			default:
			}
			fn()
		}
	}
}

func (t *realTimer) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}
