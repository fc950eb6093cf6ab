package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/internal/util"
	"github.com/teranos/autonomy/logger"
	"github.com/teranos/autonomy/pulse/async"
	"github.com/teranos/autonomy/sym"
)

// JobSubmitter is the part of the job manager the ticker needs.
// Kept as an interface so tests can stand in for the manager.
type JobSubmitter interface {
	Submit(ctx context.Context, req async.SubmitRequest) (*async.Job, error)
	Capacity() (active int, max int)
}

// MetricsSource reports host metrics for the ticker status line
type MetricsSource interface {
	GetSystemMetrics() async.SystemMetrics
}

// Ticker submits jobs for due schedules.
// Runs every interval to check for schedules that need a run.
type Ticker struct {
	store     Store
	submitter JobSubmitter
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	pulseLog  *zap.SugaredLogger
	now       func() time.Time

	mu              sync.Mutex
	unrecorded      map[string]recordedRun // submitted runs whose Advance failed
	lastTickAt      time.Time
	ticksSinceStart int64
	lastActiveWork  int
	runsSubmitted   int64
	runsSkipped     int64
}

// recordedRun is a submitted activation that still has to be written back
type recordedRun struct {
	dueAt time.Time
	next  time.Time
	runAt time.Time
	jobID string
}

// TickerConfig contains configuration for the Pulse ticker
type TickerConfig struct {
	Interval time.Duration // How often to check for due schedules (default: 1 second)
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval: 1 * time.Second,
	}
}

// NewTicker creates a new Pulse ticker
func NewTicker(store Store, submitter JobSubmitter, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	return NewTickerWithContext(context.Background(), store, submitter, cfg, log)
}

// NewTickerWithContext creates a ticker with a parent context
func NewTickerWithContext(ctx context.Context, store Store, submitter JobSubmitter, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	if log == nil {
		log = logger.Logger
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickerConfig().Interval
	}
	tickerCtx, cancel := context.WithCancel(ctx)

	return &Ticker{
		store:      store,
		submitter:  submitter,
		interval:   cfg.Interval,
		ctx:        tickerCtx,
		cancel:     cancel,
		pulseLog:   logger.AddPulseSymbol(log),
		now:        time.Now,
		unrecorded: make(map[string]recordedRun),
	}
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.pulseLog.Infow("Pulse ticker started", "interval", t.interval)
}

// Stop gracefully stops the ticker
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.pulseLog.Infow("Pulse ticker stopped")
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			now := t.now()
			t.mu.Lock()
			t.lastTickAt = now
			t.ticksSinceStart++
			tick := t.ticksSinceStart
			t.mu.Unlock()

			t.logNextRunInfo(now)

			if err := t.checkSchedules(now); err != nil {
				t.pulseLog.Warnw("Pulse tick error", logger.FieldError, err, "tick", tick)
			}
		}
	}
}

// logNextRunInfo logs the next scheduled run whenever active work changes
func (t *Ticker) logNextRunInfo(now time.Time) {
	activeWork, _ := t.submitter.Capacity()

	t.mu.Lock()
	hasChanged := activeWork != t.lastActiveWork
	t.lastActiveWork = activeWork
	t.mu.Unlock()

	if !hasChanged {
		return
	}

	next, err := t.store.NextDue(t.ctx)
	if err != nil {
		t.pulseLog.Warnw("Failed to get next schedule", logger.FieldError, err)
		return
	}

	// 1 symbol per 5 active jobs, capped at 60
	indicator := ""
	if activeWork > 0 {
		n := activeWork/5 + 1
		if n > 60 {
			n = 60
		}
		indicator = strings.TrimSpace(strings.Repeat(sym.Pulse+" ", n)) + " "
	}

	if next == nil || next.NextRunAt == nil {
		if activeWork > 0 {
			t.pulseLog.Infow(fmt.Sprintf("%sPulse - no scheduled runs, %d jobs active", indicator, activeWork))
		} else {
			t.pulseLog.Infow("Pulse - no scheduled runs")
		}
		return
	}

	timeUntil := next.NextRunAt.Sub(now)
	if timeUntil < 0 {
		timeUntil = 0
	}

	msg := fmt.Sprintf("%sPulse - next run of '%s' for %s in %s",
		indicator, next.Cadence, next.DatasetID, timeUntil.Round(time.Second))
	if activeWork > 0 {
		msg += fmt.Sprintf(", %d jobs active", activeWork)
	}
	if ms, ok := t.submitter.(MetricsSource); ok {
		metrics := ms.GetSystemMetrics()
		msg += fmt.Sprintf(" │ Jobs: %d/%d │ Mem: %.1f/%.1fGB (%.0f%%)",
			metrics.JobsActive, metrics.MaxRunning,
			metrics.MemoryUsedGB, metrics.MemoryTotalGB, metrics.MemoryPercent)
	}
	t.pulseLog.Infow(msg)
}

// checkSchedules submits a job for every due schedule
func (t *Ticker) checkSchedules(now time.Time) error {
	due, err := t.store.ListDue(t.ctx, now)
	if err != nil {
		return errors.Wrap(err, "failed to list due schedules")
	}

	for _, sched := range due {
		select {
		case <-t.ctx.Done():
			return t.ctx.Err()
		default:
		}

		if err := t.runSchedule(sched, now); err != nil {
			t.pulseLog.Errorw("Failed to run schedule",
				logger.FieldScheduleID, sched.ID,
				logger.FieldDatasetID, sched.DatasetID,
				logger.FieldError, err)
			continue
		}
	}
	return nil
}

// runSchedule submits one run and advances next_run_at. A run skipped for
// capacity still advances; any other submit failure leaves next_run_at so
// the next tick retries.
func (t *Ticker) runSchedule(sched *Schedule, now time.Time) error {
	if done, err := t.recordPendingRun(sched, now); done || err != nil {
		return err
	}

	cadence, err := ParseCadence(sched.Cadence)
	if err != nil {
		return err
	}
	next := cadence.Next(now)

	job, err := t.submitter.Submit(t.ctx, async.SubmitRequest{
		DatasetID:  sched.DatasetID,
		Parameters: t.resolveParametersLastRun(sched),
		Options:    sched.Options,
		Actor:      fmt.Sprintf("pulse:%s", sched.ID),
		ScheduleID: sched.ID,
	})

	if errors.IsCapacityExceededError(err) {
		t.mu.Lock()
		t.runsSkipped++
		t.mu.Unlock()

		t.pulseLog.Warnw("Pulse SKIPPED, at capacity",
			logger.FieldScheduleID, sched.ID,
			logger.FieldDatasetID, sched.DatasetID,
			"next_run_at", next)
		return t.store.Advance(t.ctx, sched.ID, next, nil, "", now)
	}
	if err != nil {
		return errors.Wrap(err, "failed to submit scheduled job")
	}

	t.mu.Lock()
	t.runsSubmitted++
	t.mu.Unlock()

	t.pulseLog.Infow("Pulse OK",
		logger.FieldScheduleID, sched.ID,
		logger.FieldDatasetID, sched.DatasetID,
		logger.FieldJobID, job.ID,
		"next_in", next.Sub(now).Round(time.Second),
		"next_run_at", next)

	if err := t.store.Advance(t.ctx, sched.ID, next, util.Ptr(now), job.ID, now); err != nil {
		t.mu.Lock()
		t.unrecorded[sched.ID] = recordedRun{dueAt: *sched.NextRunAt, next: next, runAt: now, jobID: job.ID}
		t.mu.Unlock()
		return errors.Wrap(err, "failed to update schedule after run")
	}
	return nil
}

// recordPendingRun writes back a run that was submitted for this activation
// but whose Advance failed, instead of submitting the activation again.
// Returns true when the schedule was handled.
func (t *Ticker) recordPendingRun(sched *Schedule, now time.Time) (bool, error) {
	t.mu.Lock()
	run, ok := t.unrecorded[sched.ID]
	t.mu.Unlock()
	if !ok {
		return false, nil
	}

	// Resumed or rescheduled since: the stored activation is a new one
	if sched.NextRunAt == nil || !sched.NextRunAt.Equal(run.dueAt) {
		t.forgetRun(sched.ID)
		return false, nil
	}

	if err := t.store.Advance(t.ctx, sched.ID, run.next, util.Ptr(run.runAt), run.jobID, now); err != nil {
		return true, errors.Wrap(err, "failed to record earlier run")
	}
	t.forgetRun(sched.ID)

	t.pulseLog.Infow("Pulse recorded earlier run",
		logger.FieldScheduleID, sched.ID,
		logger.FieldJobID, run.jobID,
		"next_run_at", run.next)
	return true, nil
}

func (t *Ticker) forgetRun(id string) {
	t.mu.Lock()
	delete(t.unrecorded, id)
	t.mu.Unlock()
}

// resolveParametersLastRun replaces "since":"last_run" in the schedule's
// parameters with the previous run time, or drops it on the first run.
func (t *Ticker) resolveParametersLastRun(sched *Schedule) json.RawMessage {
	if len(sched.Parameters) == 0 || !strings.Contains(string(sched.Parameters), `"last_run"`) {
		return sched.Parameters
	}

	var params map[string]interface{}
	if err := json.Unmarshal(sched.Parameters, &params); err != nil {
		return sched.Parameters
	}
	if since, ok := params["since"].(string); !ok || since != "last_run" {
		return sched.Parameters
	}

	if sched.LastRunAt != nil {
		params["since"] = async.FormatTimestamp(*sched.LastRunAt)
	} else {
		delete(params, "since")
	}

	resolved, err := json.Marshal(params)
	if err != nil {
		return sched.Parameters
	}
	return resolved
}

// GetStats returns ticker statistics
func (t *Ticker) GetStats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      t.lastTickAt,
		"ticks_since_start": t.ticksSinceStart,
		"interval":          t.interval,
		"runs_submitted":    t.runsSubmitted,
		"runs_skipped":      t.runsSkipped,
		"runs_unrecorded":   len(t.unrecorded),
	}
}
