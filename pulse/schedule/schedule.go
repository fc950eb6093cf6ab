// Package schedule provides recurring autonomy jobs: schedules with a cron
// cadence, their stores, and the ticker that submits due runs.
package schedule

import (
	"encoding/json"
	"time"
)

// Schedule spawns a job for its dataset each time its cadence comes due.
// Disabling a schedule stops future runs only; jobs it already created are
// left alone.
type Schedule struct {
	ID         string          `json:"id"`
	DatasetID  string          `json:"dataset_id"`
	Cadence    string          `json:"cadence"` // cron expression or descriptor (@hourly, @every 30m)
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Options    json.RawMessage `json:"options,omitempty"` // Forwarded to every spawned job
	Enabled    bool            `json:"enabled"`
	NextRunAt  *time.Time      `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time      `json:"last_run_at,omitempty"`
	LastJobID  string          `json:"last_job_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Options tunes schedule creation
type Options struct {
	Enabled *bool      // nil means enabled
	StartAt *time.Time // first run is at or after StartAt
	Raw     json.RawMessage
}

// Clone returns a deep copy
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	c := *s
	if s.Parameters != nil {
		c.Parameters = append(json.RawMessage(nil), s.Parameters...)
	}
	if s.Options != nil {
		c.Options = append(json.RawMessage(nil), s.Options...)
	}
	if s.NextRunAt != nil {
		t := *s.NextRunAt
		c.NextRunAt = &t
	}
	if s.LastRunAt != nil {
		t := *s.LastRunAt
		c.LastRunAt = &t
	}
	return &c
}

// IsDue reports whether the schedule should run at now
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Enabled && s.NextRunAt != nil && !s.NextRunAt.After(now)
}
