package async

import (
	"context"
	"time"
)

// Store persists jobs. Implementations are safe for concurrent use and never
// hand out references to their internal state.
type Store interface {
	// Put inserts or replaces a job
	Put(ctx context.Context, job *Job) error

	// Get returns the job with id, or a not-found error
	Get(ctx context.Context, id string) (*Job, error)

	// List returns one page of jobs in creation order and the total number
	// of jobs matching the filter
	List(ctx context.Context, filter ListFilter) ([]*Job, int, error)

	// Delete removes the job with id, or returns a not-found error
	Delete(ctx context.Context, id string) error

	// CompareAndSwap writes job only if the stored status is one of from.
	// Returns a not-found error for unknown ids and an invalid-state error
	// when the stored status does not match.
	CompareAndSwap(ctx context.Context, job *Job, from ...JobStatus) error

	// SetProgress writes progress only while the stored job is running and
	// its stored progress is not above the new value. Returns a not-found
	// error for unknown ids, an invalid-state error when the job is not
	// running and a validation error when progress would decrease.
	SetProgress(ctx context.Context, id string, progress int, now time.Time) error

	// CountByStatus returns the number of jobs per status
	CountByStatus(ctx context.Context) (map[JobStatus]int, error)
}

// ListFilter selects a page of jobs
type ListFilter struct {
	Status *JobStatus // nil matches every status
	Page   int        // 1-based, values below 1 mean 1
	Limit  int        // 0 means no limit
}

// Offset returns the number of matching jobs before the requested page
func (f ListFilter) Offset() int {
	if f.Limit <= 0 || f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

func (f ListFilter) matches(job *Job) bool {
	return f.Status == nil || job.Status == *f.Status
}

func statusIn(status JobStatus, from []JobStatus) bool {
	for _, s := range from {
		if s == status {
			return true
		}
	}
	return false
}
