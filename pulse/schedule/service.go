package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/internal/util"
	"github.com/teranos/autonomy/logger"
)

// Service creates and manages schedules on top of a Store
type Service struct {
	store Store
	log   *zap.SugaredLogger
	now   func() time.Time
	newID func() string
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithClock sets the time source used for next-run computation
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator sets how schedule ids are generated
func WithIDGenerator(gen func() string) ServiceOption {
	return func(s *Service) { s.newID = gen }
}

// NewService creates a schedule service
func NewService(store Store, log *zap.SugaredLogger, opts ...ServiceOption) *Service {
	if log == nil {
		log = logger.Logger
	}
	s := &Service{
		store: store,
		log:   logger.AddPulseSymbol(log),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying schedule store
func (s *Service) Store() Store {
	return s.store
}

// Create registers a recurring job for a dataset. The first run is the first
// cadence activation at or after max(now, StartAt).
func (s *Service) Create(ctx context.Context, datasetID, cadence string, parameters json.RawMessage, opts Options) (*Schedule, error) {
	return s.create(ctx, s.newID(), datasetID, cadence, parameters, opts)
}

func (s *Service) create(ctx context.Context, id, datasetID, expr string, parameters json.RawMessage, opts Options) (*Schedule, error) {
	if datasetID == "" {
		return nil, errors.NewValidationError("datasetId is required")
	}
	cadence, err := ParseCadence(expr)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	next := cadence.Next(now)
	if opts.StartAt != nil && opts.StartAt.After(now) {
		next = cadence.NextAtOrAfter(opts.StartAt.UTC())
	}

	enabled := true
	if opts.Enabled != nil {
		enabled = *opts.Enabled
	}

	sched := &Schedule{
		ID:         id,
		DatasetID:  datasetID,
		Cadence:    cadence.String(),
		Parameters: parameters,
		Options:    opts.Raw,
		Enabled:    enabled,
		NextRunAt:  &next,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Create(ctx, sched); err != nil {
		return nil, err
	}

	s.log.Infow("Schedule created",
		logger.FieldScheduleID, sched.ID,
		logger.FieldDatasetID, datasetID,
		"cadence", sched.Cadence,
		"enabled", enabled,
		"next_run_at", next)
	return sched, nil
}

// Get returns a schedule by id
func (s *Service) Get(ctx context.Context, id string) (*Schedule, error) {
	return s.store.Get(ctx, id)
}

// List returns all schedules in creation order
func (s *Service) List(ctx context.Context) ([]*Schedule, error) {
	return s.store.List(ctx)
}

// SetEnabled pauses or resumes a schedule. Resuming recomputes the next run
// from now so missed activations are not replayed. Jobs already spawned are
// not touched.
func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) (*Schedule, error) {
	sched, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.Enabled == enabled {
		return sched, nil
	}

	now := s.now().UTC()
	var next *time.Time
	if enabled {
		cadence, err := ParseCadence(sched.Cadence)
		if err != nil {
			return nil, errors.WithDetail(err, fmt.Sprintf("Schedule ID: %s", id))
		}
		next = util.Ptr(cadence.Next(now))
	}

	if err := s.store.SetEnabled(ctx, id, enabled, next, now); err != nil {
		return nil, err
	}
	sched, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.Infow("Schedule updated",
		logger.FieldScheduleID, id,
		"enabled", enabled)
	return sched, nil
}

// Delete removes a schedule. Jobs it spawned are kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Infow("Schedule deleted", logger.FieldScheduleID, id)
	return nil
}

// Seed creates the file schedules whose ids are not yet stored and returns
// how many were created. Existing schedules are left as they are.
func (s *Service) Seed(ctx context.Context, entries []FileSchedule) (int, error) {
	created := 0
	for _, entry := range entries {
		_, err := s.store.Get(ctx, entry.ID)
		if err == nil {
			continue
		}
		if !errors.IsNotFoundError(err) {
			return created, err
		}

		params, err := entry.ParametersJSON()
		if err != nil {
			return created, err
		}
		opts := Options{Enabled: entry.Enabled, StartAt: entry.StartAt}
		if _, err := s.create(ctx, entry.ID, entry.DatasetID, entry.Cadence, params, opts); err != nil {
			return created, errors.Wrapf(err, "failed to seed schedule %s", entry.ID)
		}
		created++
	}
	return created, nil
}
