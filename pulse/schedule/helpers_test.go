package schedule

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/autonomy/errors"
	autonomytest "github.com/teranos/autonomy/internal/testing"
	"github.com/teranos/autonomy/pulse/async"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// storeFactories runs every store test against both implementations
var storeFactories = map[string]func(t *testing.T) Store{
	"memory": func(t *testing.T) Store { return NewMemoryStore() },
	"sqlite": func(t *testing.T) Store { return NewSQLStore(autonomytest.CreateTestDB(t)) },
}

func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + strconv.Itoa(n)
	}
}

func newTestService(t *testing.T, store Store, clock *time.Time) *Service {
	t.Helper()
	return NewService(store, zaptest.NewLogger(t).Sugar(),
		WithClock(func() time.Time { return *clock }),
		WithIDGenerator(sequentialIDs("s-")))
}

func mustCreate(t *testing.T, svc *Service, dataset, cadence string, opts Options) *Schedule {
	t.Helper()
	s, err := svc.Create(context.Background(), dataset, cadence, nil, opts)
	require.NoError(t, err)
	return s
}

// fakeSubmitter records submissions and can be told to reject them
type fakeSubmitter struct {
	mu       sync.Mutex
	requests []async.SubmitRequest
	err      error
	newID    func() string
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{newID: sequentialIDs("job-")}
}

func (f *fakeSubmitter) Submit(ctx context.Context, req async.SubmitRequest) (*async.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &async.Job{ID: f.newID(), DatasetID: req.DatasetID, Status: async.JobStatusRunning}, nil
}

func (f *fakeSubmitter) Capacity() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests), 0
}

func (f *fakeSubmitter) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSubmitter) submitted() []async.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]async.SubmitRequest(nil), f.requests...)
}

var errCapacity = errors.NewCapacityExceededError("2 jobs running (max 2)")
