package async

import "time"

// Scheduler arms one-shot callbacks. The Manager uses it for job completion
// triggers so tests can fire them deterministically.
type Scheduler interface {
	After(d time.Duration, fn func()) Timer
}

// Timer is a handle to an armed callback
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or was already stopped.
	Stop() bool
}

// ClockScheduler is the production Scheduler backed by time.AfterFunc
type ClockScheduler struct{}

// After calls fn in its own goroutine once d has elapsed
func (ClockScheduler) After(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, fn)
}
