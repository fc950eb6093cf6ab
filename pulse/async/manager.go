package async

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/logger"
)

// SubscriberChannelBufferSize is the buffer size for subscriber channels
const SubscriberChannelBufferSize = 100

// CompletionRetryDelay is how long a completion trigger waits before retrying
// after the store failed to read or write the job
const CompletionRetryDelay = time.Second

// ManagerConfig controls job execution
type ManagerConfig struct {
	CompletionDelay time.Duration // Time from submit to the completion trigger
	MaxRunning      int           // Bound on non-terminal jobs, 0 = unbounded
}

// DefaultManagerConfig returns the default configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		CompletionDelay: 5 * time.Second,
		MaxRunning:      100,
	}
}

// ManagerOption customizes a Manager
type ManagerOption func(*Manager)

// WithOutcome sets how completed jobs obtain their result
func WithOutcome(o Outcome) ManagerOption {
	return func(m *Manager) { m.outcome = o }
}

// WithClock sets the time source used for lifecycle timestamps
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator sets how job ids are generated
func WithIDGenerator(gen func() string) ManagerOption {
	return func(m *Manager) { m.newID = gen }
}

// SubmitRequest describes a new job
type SubmitRequest struct {
	DatasetID  string
	Parameters json.RawMessage
	Options    json.RawMessage
	Actor      string
	ScheduleID string
}

// ResultLookup is the answer to a result request. Ready is false while the
// job has not completed, in which case only Status and Progress are meaningful.
type ResultLookup struct {
	Ready    bool
	Status   JobStatus
	Progress int
	Payload  *ResultPayload
	Job      *Job
}

// JobPage is one page of job history
type JobPage struct {
	Jobs  []*Job
	Page  int
	Limit int
	Total int
}

// Stats counts jobs per status
type Stats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// Manager owns the job state machine. Every transition is a compare-and-set
// against the store, so a completion trigger racing a cancel can never
// overwrite a terminal status.
//
// Scheduler implementations must not invoke callbacks synchronously from After.
type Manager struct {
	store   Store
	sched   Scheduler
	log     *zap.SugaredLogger
	outcome Outcome
	now     func() time.Time
	newID   func() string

	mu     sync.Mutex
	cfg    ManagerConfig
	active map[string]struct{} // non-terminal jobs counted against MaxRunning
	timers map[string]Timer
	closed bool

	subMu       sync.RWMutex
	subscribers []chan *Job
}

// NewManager creates a job lifecycle manager
func NewManager(store Store, sched Scheduler, cfg ManagerConfig, log *zap.SugaredLogger, opts ...ManagerOption) *Manager {
	if log == nil {
		log = logger.Logger
	}
	if sched == nil {
		sched = ClockScheduler{}
	}

	m := &Manager{
		store:   store,
		sched:   sched,
		cfg:     cfg,
		log:     logger.AddPulseSymbol(log),
		outcome: NewSimulatedOutcome(0),
		now:     time.Now,
		newID:   uuid.NewString,
		active:  make(map[string]struct{}),
		timers:  make(map[string]Timer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit records a new running job and arms its completion trigger
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if req.DatasetID == "" {
		return nil, errors.NewValidationError("datasetId is required")
	}

	id, delay, err := m.reserve()
	if err != nil {
		return nil, err
	}

	now := m.now()
	job, err := NewJob(id, req.DatasetID, req.Parameters, req.Options, now)
	if err != nil {
		m.release(id)
		return nil, err
	}
	job.Actor = req.Actor
	job.ScheduleID = req.ScheduleID

	// pending -> running happens before the first write, so readers never see pending
	job.Start(now)

	if err := m.store.Put(ctx, job); err != nil {
		m.release(id)
		err = errors.Wrap(err, "failed to submit job")
		return nil, errors.WithDetail(err, fmt.Sprintf("Dataset ID: %s", req.DatasetID))
	}

	m.arm(id, delay)
	m.notifySubscribers(job)

	m.log.Infow("Job submitted",
		logger.FieldJobID, id,
		logger.FieldDatasetID, req.DatasetID,
		"delay", delay.String())

	return job.Clone(), nil
}

// reserve claims a capacity slot and a fresh job id
func (m *Manager) reserve() (string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", 0, errors.New("job manager is closed")
	}
	if m.cfg.MaxRunning > 0 && len(m.active) >= m.cfg.MaxRunning {
		err := errors.NewCapacityExceededError("%d jobs already running (max %d)", len(m.active), m.cfg.MaxRunning)
		return "", 0, errors.WithHint(err, "retry after running jobs complete")
	}

	id := m.newID()
	m.active[id] = struct{}{}
	return id, m.cfg.CompletionDelay, nil
}

// release frees the capacity slot held by id. Safe to call more than once.
func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

func (m *Manager) arm(id string, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.timers[id] = m.sched.After(delay, func() { m.complete(id) })
}

func (m *Manager) disarm(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
}

// complete is the completion trigger. It re-checks the stored status via
// compare-and-set, so a trigger that fires after cancel or fail is a no-op.
func (m *Manager) complete(id string) {
	ctx := context.Background()

	m.mu.Lock()
	delete(m.timers, id)
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}

	job, err := m.store.Get(ctx, id)
	if errors.IsNotFoundError(err) {
		m.release(id)
		m.log.Debugw("Completion trigger found no job", logger.FieldJobID, id)
		return
	}
	if err != nil {
		m.retryCompletion(id, "read", err)
		return
	}
	if job.Status != JobStatusRunning {
		m.log.Debugw("Completion trigger ignored", logger.FieldJobID, id, logger.FieldStatus, job.Status)
		return
	}

	job.Complete(m.outcome.Produce(job.Clone()), m.now())

	if err := m.store.CompareAndSwap(ctx, job, JobStatusRunning); err != nil {
		if errors.IsInvalidStateError(err) {
			m.log.Debugw("Completion lost race", logger.FieldJobID, id, logger.FieldError, err)
			return
		}
		if errors.IsNotFoundError(err) {
			m.release(id)
			return
		}
		m.retryCompletion(id, "write", err)
		return
	}

	m.release(id)
	m.notifySubscribers(job)
	m.log.Infow("Job completed",
		logger.FieldJobID, id,
		logger.FieldDatasetID, job.DatasetID,
		"accuracy", job.Result.Accuracy)
}

// retryCompletion re-arms the trigger after a store error so the job keeps
// its slot only until the store recovers
func (m *Manager) retryCompletion(id, op string, err error) {
	m.log.Warnw("Completion trigger failed to "+op+" job, retrying",
		logger.FieldJobID, id,
		"retry_in", CompletionRetryDelay.String(),
		logger.FieldError, err)
	m.arm(id, CompletionRetryDelay)
}

// Cancel moves a pending or running job to cancelled
func (m *Manager) Cancel(ctx context.Context, id, reason string) (*Job, error) {
	return m.terminate(ctx, id, "cancelled", func(job *Job, now time.Time) {
		job.Cancel(reason, now)
	})
}

// Fail moves a pending or running job to failed with the given reason
func (m *Manager) Fail(ctx context.Context, id, reason string) (*Job, error) {
	if reason == "" {
		reason = "job failed"
	}
	return m.terminate(ctx, id, "failed", func(job *Job, now time.Time) {
		job.Fail(reason, now)
	})
}

func (m *Manager) terminate(ctx context.Context, id, verb string, apply func(*Job, time.Time)) (*Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		err := errors.NewInvalidStateError("job %s cannot be %s (status: %s)", id, verb, job.Status)
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", id))
		return nil, errors.WithDetail(err, fmt.Sprintf("Current status: %s", job.Status))
	}

	from := job.Status
	apply(job, m.now())

	if err := m.store.CompareAndSwap(ctx, job, JobStatusPending, JobStatusRunning); err != nil {
		return nil, errors.Wrapf(err, "failed to mark job %s", verb)
	}

	m.disarm(id)
	m.release(id)
	m.notifySubscribers(job)

	m.log.Infow("Job "+verb,
		logger.FieldJobID, id,
		logger.FieldFrom, from,
		"reason", firstNonEmpty(job.CancelReason, job.Error))

	return job.Clone(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ReportProgress records intermediate progress of a running job. Progress
// never decreases and stays below 100 until the job completes.
func (m *Manager) ReportProgress(ctx context.Context, id string, progress int) (*Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != JobStatusRunning {
		return nil, errors.NewInvalidStateError("job %s is not running (status: %s)", id, job.Status)
	}
	if progress < job.Progress || progress > 99 {
		return nil, errors.NewValidationError("progress must be between %d and 99, got %d", job.Progress, progress)
	}

	now := m.now()
	if err := m.store.SetProgress(ctx, id, progress, now); err != nil {
		return nil, err
	}
	job.UpdateProgress(progress, now)

	m.notifySubscribers(job)
	m.log.Debugw("Job progress", logger.FieldJobID, id, logger.FieldProgress, progress)
	return job.Clone(), nil
}

// GetStatus returns the current job record
func (m *Manager) GetStatus(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

// GetResult returns the formatted result of a completed job, or the current
// status and progress of a job that has not completed yet
func (m *Manager) GetResult(ctx context.Context, id string) (*ResultLookup, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	lookup := &ResultLookup{
		Ready:    job.Status == JobStatusCompleted,
		Status:   job.Status,
		Progress: job.Progress,
		Job:      job,
	}
	if lookup.Ready {
		payload := FormatResult(job)
		lookup.Payload = &payload
	}
	return lookup, nil
}

// History lists jobs in creation order
func (m *Manager) History(ctx context.Context, filter ListFilter) (*JobPage, error) {
	if filter.Status != nil && !IsValidStatus(string(*filter.Status)) {
		return nil, errors.NewValidationError("invalid status filter: %s", *filter.Status)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	jobs, total, err := m.store.List(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list job history")
	}

	return &JobPage{
		Jobs:  jobs,
		Page:  filter.Page,
		Limit: filter.Limit,
		Total: total,
	}, nil
}

// Delete removes a terminal job
func (m *Manager) Delete(ctx context.Context, id string) error {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return errors.NewInvalidStateError("job %s is still %s", id, job.Status)
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "failed to delete job")
	}

	m.log.Infow("Job deleted", logger.FieldJobID, id)
	return nil
}

// Stats returns job counts per status
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	counts, err := m.store.CountByStatus(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job stats")
	}

	stats := &Stats{
		Pending:   counts[JobStatusPending],
		Running:   counts[JobStatusRunning],
		Completed: counts[JobStatusCompleted],
		Failed:    counts[JobStatusFailed],
		Cancelled: counts[JobStatusCancelled],
	}
	stats.Total = stats.Pending + stats.Running + stats.Completed + stats.Failed + stats.Cancelled
	return stats, nil
}

// Recover re-arms completion triggers for non-terminal jobs left in a
// persistent store by a previous process. Jobs whose delay already elapsed
// complete on the next scheduler tick. Returns the number of jobs recovered.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	recovered := 0
	for _, status := range []JobStatus{JobStatusPending, JobStatusRunning} {
		s := status
		jobs, _, err := m.store.List(ctx, ListFilter{Status: &s})
		if err != nil {
			return recovered, errors.Wrapf(err, "failed to list %s jobs", status)
		}

		for _, job := range jobs {
			now := m.now()
			if job.Status == JobStatusPending {
				job.Start(now)
				if err := m.store.CompareAndSwap(ctx, job, JobStatusPending); err != nil {
					m.log.Warnw("Failed to start recovered job", logger.FieldJobID, job.ID, logger.FieldError, err)
					continue
				}
			}

			m.mu.Lock()
			_, armed := m.timers[job.ID]
			m.active[job.ID] = struct{}{}
			delay := m.cfg.CompletionDelay
			m.mu.Unlock()
			if armed {
				continue
			}

			started := now
			if job.StartedAt != nil {
				started = *job.StartedAt
			}
			remaining := started.Add(delay).Sub(now)
			if remaining < 0 {
				remaining = 0
			}
			m.arm(job.ID, remaining)
			recovered++
		}
	}

	if recovered > 0 {
		m.log.Infow("Recovered running jobs", logger.FieldCount, recovered)
	}
	return recovered, nil
}

// SetMaxRunning changes the capacity bound. Jobs already running are not affected.
func (m *Manager) SetMaxRunning(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.MaxRunning = n
}

// Config returns the current manager configuration
func (m *Manager) Config() ManagerConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Capacity returns the number of jobs holding a slot and the current bound
func (m *Manager) Capacity() (active int, max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active), m.cfg.MaxRunning
}

// Subscribe returns a channel that receives a copy of every job after each
// successful mutation. Slow subscribers miss updates rather than block.
func (m *Manager) Subscribe() chan *Job {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a subscriber channel
func (m *Manager) Unsubscribe(ch chan *Job) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// notifySubscribers sends job updates to all subscribers (non-blocking)
func (m *Manager) notifySubscribers(job *Job) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for _, ch := range m.subscribers {
		select {
		case ch <- job.Clone():
		default:
			// Channel full, skip this update
		}
	}
}

// Close stops every armed trigger and closes subscriber channels.
// Jobs stay in the store with their current status.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()

	m.subMu.Lock()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	m.subMu.Unlock()
}
