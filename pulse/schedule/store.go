package schedule

import (
	"context"
	"time"
)

// Store persists schedules. Implementations are safe for concurrent use.
type Store interface {
	// Create inserts a new schedule; the id must be unused
	Create(ctx context.Context, s *Schedule) error

	Get(ctx context.Context, id string) (*Schedule, error)

	// List returns every schedule in creation order
	List(ctx context.Context) ([]*Schedule, error)

	// SetEnabled pauses or resumes a schedule without touching its run
	// record. A nil next keeps the stored next_run_at.
	SetEnabled(ctx context.Context, id string, enabled bool, next *time.Time, now time.Time) error

	Delete(ctx context.Context, id string) error

	// ListDue returns enabled schedules whose next run is at or before now,
	// earliest first
	ListDue(ctx context.Context, now time.Time) ([]*Schedule, error)

	// NextDue returns the enabled schedule with the earliest next run, or nil
	NextDue(ctx context.Context) (*Schedule, error)

	// Advance moves next_run_at after a run attempt without touching other
	// fields. A nil lastRunAt keeps the previous run record.
	Advance(ctx context.Context, id string, next time.Time, lastRunAt *time.Time, lastJobID string, now time.Time) error
}
