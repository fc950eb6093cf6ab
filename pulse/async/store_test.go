package async

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/autonomy/errors"
	autonomytest "github.com/teranos/autonomy/internal/testing"
)

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

func runningJob(t *testing.T, id, dataset string, at time.Time) *Job {
	t.Helper()
	job, err := NewJob(id, dataset, json.RawMessage(`{"window":7}`), json.RawMessage(`{"priority":"low"}`), at)
	require.NoError(t, err)
	job.Actor = "ops"
	job.Start(at)
	return job
}

func TestStore_PutGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		job := runningJob(t, "j1", "d1", t0)
		job.ScheduleID = "s1"
		require.NoError(t, store.Put(ctx, job))

		got, err := store.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, "d1", got.DatasetID)
		assert.Equal(t, JobStatusRunning, got.Status)
		assert.Equal(t, "ops", got.Actor)
		assert.Equal(t, "s1", got.ScheduleID)
		assert.JSONEq(t, `{"window":7}`, string(got.Parameters))
		assert.JSONEq(t, `{"priority":"low"}`, string(got.Options))
		assert.True(t, got.CreatedAt.Equal(t0))
		require.NotNil(t, got.StartedAt)
		assert.True(t, got.StartedAt.Equal(t0))
		assert.Nil(t, got.CompletedAt)
		assert.Nil(t, got.Result)

		// Returned jobs are copies
		got.Status = JobStatusFailed
		again, err := store.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, JobStatusRunning, again.Status)
	})
}

func TestStore_PutReplaces(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		job := runningJob(t, "j1", "d1", t0)
		require.NoError(t, store.Put(ctx, job))

		job.Complete(Result{Accuracy: 0.91, Iterations: 100, Convergence: true}, t0.Add(5*time.Second))
		require.NoError(t, store.Put(ctx, job))

		got, err := store.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, JobStatusCompleted, got.Status)
		assert.Equal(t, 100, got.Progress)
		require.NotNil(t, got.Result)
		assert.Equal(t, 0.91, got.Result.Accuracy)
		assert.True(t, got.CompletedAt.Equal(t0.Add(5*time.Second)))

		_, total, err := store.List(ctx, ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})
}

func TestStore_GetNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		_, err := store.Get(context.Background(), "missing")
		assert.True(t, errors.IsNotFoundError(err))
	})
}

func TestStore_ListOrderAndPagination(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		for i := 1; i <= 5; i++ {
			job := runningJob(t, fmt.Sprintf("j%d", i), "d1", t0.Add(time.Duration(i)*time.Second))
			if i%2 == 0 {
				job.Cancel("", t0.Add(time.Minute))
			}
			require.NoError(t, store.Put(ctx, job))
		}

		all, total, err := store.List(ctx, ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, all, 5)
		for i, job := range all {
			assert.Equal(t, fmt.Sprintf("j%d", i+1), job.ID, "creation order")
		}

		page2, total, err := store.List(ctx, ListFilter{Page: 2, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total, "total ignores limit")
		require.Len(t, page2, 2)
		assert.Equal(t, "j3", page2[0].ID)
		assert.Equal(t, "j4", page2[1].ID)

		page3, _, err := store.List(ctx, ListFilter{Page: 3, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page3, 1)
		assert.Equal(t, "j5", page3[0].ID)

		beyond, total, err := store.List(ctx, ListFilter{Page: 9, Limit: 2})
		require.NoError(t, err)
		assert.Empty(t, beyond)
		assert.Equal(t, 5, total)

		cancelled := JobStatusCancelled
		filtered, total, err := store.List(ctx, ListFilter{Status: &cancelled, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, filtered, 1)
		assert.Equal(t, "j2", filtered[0].ID)
	})
}

func TestStore_Delete(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, runningJob(t, "j1", "d1", t0)))
		require.NoError(t, store.Put(ctx, runningJob(t, "j2", "d1", t0)))

		require.NoError(t, store.Delete(ctx, "j1"))
		_, err := store.Get(ctx, "j1")
		assert.True(t, errors.IsNotFoundError(err))

		jobs, total, err := store.List(ctx, ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, "j2", jobs[0].ID)

		assert.True(t, errors.IsNotFoundError(store.Delete(ctx, "j1")))
	})
}

func TestStore_CompareAndSwap(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		job := runningJob(t, "j1", "d1", t0)
		require.NoError(t, store.Put(ctx, job))

		cancelled := job.Clone()
		cancelled.Cancel("user request", t0.Add(time.Second))
		require.NoError(t, store.CompareAndSwap(ctx, cancelled, JobStatusPending, JobStatusRunning))

		completed := job.Clone()
		completed.Complete(Result{Accuracy: 0.9, Iterations: 100, Convergence: true}, t0.Add(5*time.Second))
		err := store.CompareAndSwap(ctx, completed, JobStatusRunning)
		require.Error(t, err)
		assert.True(t, errors.IsInvalidStateError(err))

		got, err := store.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, JobStatusCancelled, got.Status, "lost swap must not overwrite")
		assert.Equal(t, "user request", got.CancelReason)
		assert.Nil(t, got.Result)
		assert.Nil(t, got.CompletedAt)

		ghost := runningJob(t, "ghost", "d1", t0)
		assert.True(t, errors.IsNotFoundError(store.CompareAndSwap(ctx, ghost, JobStatusRunning)))
	})
}

func TestStore_CompareAndSwapSingleWinner(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		base := runningJob(t, "j1", "d1", t0)
		require.NoError(t, store.Put(ctx, base))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				job := base.Clone()
				if i%2 == 0 {
					job.Cancel("race", t0.Add(time.Second))
				} else {
					job.Complete(Result{Convergence: true}, t0.Add(time.Second))
				}
				if store.CompareAndSwap(ctx, job, JobStatusRunning) == nil {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestStore_SetProgress(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, runningJob(t, "j1", "d1", t0)))

		require.NoError(t, store.SetProgress(ctx, "j1", 50, t0.Add(time.Second)))
		require.NoError(t, store.SetProgress(ctx, "j1", 50, t0.Add(2*time.Second)))

		err := store.SetProgress(ctx, "j1", 40, t0.Add(3*time.Second))
		assert.True(t, errors.IsValidationError(err), "stored progress never decreases")

		got, err := store.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, 50, got.Progress)
		assert.True(t, got.UpdatedAt.Equal(t0.Add(2*time.Second)))

		done := got.Clone()
		done.Complete(Result{Convergence: true}, t0.Add(5*time.Second))
		require.NoError(t, store.CompareAndSwap(ctx, done, JobStatusRunning))
		assert.True(t, errors.IsInvalidStateError(store.SetProgress(ctx, "j1", 60, t0.Add(6*time.Second))))

		assert.True(t, errors.IsNotFoundError(store.SetProgress(ctx, "ghost", 10, t0)))
	})
}

func TestStore_CountByStatus(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, runningJob(t, "j1", "d1", t0)))
		require.NoError(t, store.Put(ctx, runningJob(t, "j2", "d1", t0)))
		failed := runningJob(t, "j3", "d1", t0)
		failed.Fail("boom", t0)
		require.NoError(t, store.Put(ctx, failed))

		counts, err := store.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, counts[JobStatusRunning])
		assert.Equal(t, 1, counts[JobStatusFailed])
		assert.Equal(t, 0, counts[JobStatusCompleted])
	})
}
