package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/autonomy/pulse/async"
	"github.com/teranos/autonomy/pulse/schedule"
)

// t0 is the fixed clock used by schedule tests
var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	srv       *AutonomyServer
	jobs      *async.Manager
	schedules *schedule.Service
	ts        *httptest.Server
}

// newTestEnv builds a server over in-memory stores. mutate may adjust the
// deps before the server is created.
func newTestEnv(t *testing.T, cfg async.ManagerConfig, mutate func(*Deps)) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()

	jobs := async.NewManager(async.NewMemoryStore(), async.ClockScheduler{}, cfg, log,
		async.WithOutcome(async.OutcomeFunc(func(*async.Job) async.Result {
			return async.Result{Accuracy: 0.9, Iterations: async.SimulatedIterations, Convergence: true}
		})))
	n := 0
	schedules := schedule.NewService(schedule.NewMemoryStore(), log,
		schedule.WithClock(func() time.Time { return t0 }),
		schedule.WithIDGenerator(func() string {
			n++
			return "sched-" + string(rune('0'+n))
		}))

	deps := Deps{Jobs: jobs, Schedules: schedules}
	if mutate != nil {
		mutate(&deps)
	}

	srv := New(deps, Config{HistoryDefaultLimit: 20, HistoryMaxLimit: 50}, log)
	srv.StartBackground()
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		ts.Close()
		jobs.Close()
	})

	return &testEnv{srv: srv, jobs: jobs, schedules: schedules, ts: ts}
}

// longRunning keeps jobs running for the whole test
func longRunning() async.ManagerConfig {
	return async.ManagerConfig{CompletionDelay: time.Hour}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *http.Response {
	t.Helper()

	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, e.ts.URL+path, nil)
	} else {
		req, err = http.NewRequest(method, e.ts.URL+path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) api(t *testing.T, method, path, body string, headers ...string) *http.Response {
	t.Helper()
	return e.do(t, method, APIPrefix+path, body, headers...)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// submitJob submits a job for datasetID and returns its id
func (e *testEnv) submitJob(t *testing.T, datasetID string) string {
	t.Helper()
	resp := e.api(t, http.MethodPost, "/submit", `{"datasetId":"`+datasetID+`"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	return decode[SubmitResponse](t, resp).JobID
}
