package schedule

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teranos/autonomy/errors"
)

// Cadence is a parsed recurrence
type Cadence struct {
	expr     string
	schedule cron.Schedule
}

// ParseCadence parses a standard 5-field cron expression or a descriptor
// such as @daily or @every 1h30m
func ParseCadence(expr string) (*Cadence, error) {
	if expr == "" {
		return nil, errors.NewValidationError("cadence is required")
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		err = errors.Mark(errors.Wrapf(err, "invalid cadence %q", expr), errors.ErrValidationFailed)
		return nil, errors.WithHint(err, `use a cron expression like "0 2 * * *" or a descriptor like "@every 6h"`)
	}
	return &Cadence{expr: expr, schedule: schedule}, nil
}

// Next returns the first activation strictly after t
func (c *Cadence) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

// NextAtOrAfter returns the first activation at or after t. Interval
// cadences (@every) have no fixed grid, so their first activation is t.
func (c *Cadence) NextAtOrAfter(t time.Time) time.Time {
	if _, ok := c.schedule.(cron.ConstantDelaySchedule); ok {
		return t
	}
	return c.schedule.Next(t.Add(-time.Nanosecond))
}

// String returns the original expression
func (c *Cadence) String() string {
	return c.expr
}
