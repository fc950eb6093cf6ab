package async

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// manualScheduler records armed callbacks and fires them only when the test
// advances its clock.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newManualScheduler(start time.Time) *manualScheduler {
	return &manualScheduler{now: start}
}

func (s *manualScheduler) After(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, at: s.now.Add(d), fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Now is the scheduler's clock, usable with WithClock
func (s *manualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the clock forward and runs every due callback in deadline order
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && !t.at.After(s.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// FireStopped runs callbacks of stopped timers, simulating a timer whose
// Stop lost the race with its own expiry
func (s *manualScheduler) FireStopped() {
	s.mu.Lock()
	var stopped []*manualTimer
	for _, t := range s.timers {
		if t.stopped && !t.fired {
			t.fired = true
			stopped = append(stopped, t)
		}
	}
	s.mu.Unlock()

	for _, t := range stopped {
		t.fn()
	}
}

// Pending returns the number of armed callbacks that have not fired or been stopped
func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// sequentialIDs returns an id generator producing job-1, job-2, ...
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "job-" + strconv.Itoa(n)
	}
}

// fixedOutcome always produces the same result
var fixedOutcome = OutcomeFunc(func(*Job) Result {
	return Result{Accuracy: 0.9, Iterations: SimulatedIterations, Convergence: true}
})

// faultyStore wraps a Store and injects one-shot failures or pauses into Get
// and CompareAndSwap
type faultyStore struct {
	Store

	mu       sync.Mutex
	getErr   error
	casErr   error
	getPause *getPause
}

// getPause holds the next Get after it has read the job, until release is closed
type getPause struct {
	reached chan struct{}
	release chan struct{}
}

func (f *faultyStore) failNextGet(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *faultyStore) failNextCompareAndSwap(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.casErr = err
}

func (f *faultyStore) pauseNextGet() *getPause {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getPause = &getPause{reached: make(chan struct{}), release: make(chan struct{})}
	return f.getPause
}

func (f *faultyStore) Get(ctx context.Context, id string) (*Job, error) {
	f.mu.Lock()
	err, pause := f.getErr, f.getPause
	f.getErr, f.getPause = nil, nil
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	job, getErr := f.Store.Get(ctx, id)
	if pause != nil {
		close(pause.reached)
		<-pause.release
	}
	return job, getErr
}

func (f *faultyStore) CompareAndSwap(ctx context.Context, job *Job, from ...JobStatus) error {
	f.mu.Lock()
	err := f.casErr
	f.casErr = nil
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.CompareAndSwap(ctx, job, from...)
}
