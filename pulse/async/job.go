// Package async provides the autonomy job lifecycle: job records, stores and
// the Manager state machine that moves jobs between statuses.
package async

import (
	"encoding/json"
	"time"

	"github.com/teranos/autonomy/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []JobStatus{
	JobStatusPending,
	JobStatusRunning,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusCancelled,
}

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusRunning,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Result is the output of a completed autonomy recomputation
type Result struct {
	Accuracy    float64 `json:"accuracy"`
	Iterations  int     `json:"iterations"`
	Convergence bool    `json:"convergence"`
}

// Job is one autonomy recomputation request for a dataset.
//
// ID, DatasetID, Parameters and Options never change after creation.
// Each lifecycle timestamp is set at most once, and at most one of
// CompletedAt/CancelledAt is ever set. Result is present only when
// completed, Error only when failed.
type Job struct {
	ID           string          `json:"id"`
	DatasetID    string          `json:"dataset_id"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
	Options      json.RawMessage `json:"options,omitempty"`
	ScheduleID   string          `json:"schedule_id,omitempty"` // Set when spawned by a recurring schedule
	Actor        string          `json:"actor,omitempty"`
	Status       JobStatus       `json:"status"`
	Progress     int             `json:"progress"` // 0-100
	Result       *Result         `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"` // Also the terminal time of failed jobs
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewJob creates a pending job
func NewJob(id, datasetID string, parameters, options json.RawMessage, now time.Time) (*Job, error) {
	if id == "" {
		return nil, errors.New("job id cannot be empty")
	}
	if datasetID == "" {
		return nil, errors.NewValidationError("datasetId cannot be empty")
	}

	return &Job{
		ID:         id,
		DatasetID:  datasetID,
		Parameters: parameters,
		Options:    options,
		Status:     JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Start marks the job as running
func (j *Job) Start(now time.Time) {
	j.Status = JobStatusRunning
	j.Progress = 0
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as completed with its result
func (j *Job) Complete(result Result, now time.Time) {
	j.Status = JobStatusCompleted
	j.Progress = 100
	j.Result = &result
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed with an error message
func (j *Job) Fail(reason string, now time.Time) {
	j.Status = JobStatusFailed
	j.Error = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Cancel marks the job as cancelled with an optional reason
func (j *Job) Cancel(reason string, now time.Time) {
	j.Status = JobStatusCancelled
	j.CancelReason = reason
	j.CancelledAt = &now
	j.UpdatedAt = now
}

// UpdateProgress updates the job's progress
func (j *Job) UpdateProgress(progress int, now time.Time) {
	j.Progress = progress
	j.UpdatedAt = now
}

// Clone returns a deep copy so stores never share mutable state with callers
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Parameters = cloneRaw(j.Parameters)
	c.Options = cloneRaw(j.Options)
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.CancelledAt = cloneTime(j.CancelledAt)
	return &c
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// MarshalResult converts Result to a JSON string for storage
func MarshalResult(result *Result) (string, error) {
	if result == nil {
		return "", nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal result")
	}
	return string(data), nil
}

// UnmarshalResult converts a stored JSON string to Result
func UnmarshalResult(data string) (*Result, error) {
	if data == "" {
		return nil, nil
	}
	var result Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal result")
	}
	return &result, nil
}
