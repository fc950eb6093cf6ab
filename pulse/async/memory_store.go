package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teranos/autonomy/errors"
)

// MemoryStore keeps jobs in process memory. Jobs are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string // insertion order for listing
}

// NewMemoryStore creates an empty in-memory job store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
	}
}

// Put inserts or replaces a job
func (s *MemoryStore) Put(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		s.order = append(s.order, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns a copy of the job with id
func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.NewNotFoundError("job not found: %s", id)
	}
	return job.Clone(), nil
}

// List returns one page of jobs in insertion order
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offset := filter.Offset()
	jobs := make([]*Job, 0)
	total := 0
	for _, id := range s.order {
		job := s.jobs[id]
		if !filter.matches(job) {
			continue
		}
		total++
		if total <= offset {
			continue
		}
		if filter.Limit > 0 && len(jobs) >= filter.Limit {
			continue
		}
		jobs = append(jobs, job.Clone())
	}
	return jobs, total, nil
}

// Delete removes a job
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return errors.NewNotFoundError("job not found: %s", id)
	}
	delete(s.jobs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// CompareAndSwap writes job only if the stored status is one of from
func (s *MemoryStore) CompareAndSwap(ctx context.Context, job *Job, from ...JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[job.ID]
	if !ok {
		return errors.NewNotFoundError("job not found: %s", job.ID)
	}
	if !statusIn(current.Status, from) {
		err := errors.NewInvalidStateError("job %s is %s", job.ID, current.Status)
		return errors.WithDetail(err, fmt.Sprintf("Expected status: %v", from))
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// SetProgress raises the progress of a running job
func (s *MemoryStore) SetProgress(ctx context.Context, id string, progress int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return errors.NewNotFoundError("job not found: %s", id)
	}
	if current.Status != JobStatusRunning {
		return errors.NewInvalidStateError("job %s is not running (status: %s)", id, current.Status)
	}
	if progress < current.Progress {
		return errors.NewValidationError("progress must be between %d and 99, got %d", current.Progress, progress)
	}
	current.UpdateProgress(progress, now)
	return nil
}

// CountByStatus returns the number of jobs per status
func (s *MemoryStore) CountByStatus(ctx context.Context) (map[JobStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[JobStatus]int, len(AllStatuses))
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}
