package async

import "time"

// TimestampLayout renders external timestamps as RFC 3339 in UTC with millisecond precision
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ResultMetadata identifies the job a result belongs to
type ResultMetadata struct {
	JobID       string `json:"jobId"`
	DatasetID   string `json:"datasetId"`
	CompletedAt string `json:"completedAt,omitempty"`
}

// ResultPayload is the external shape of a completed job's result
type ResultPayload struct {
	Result   Result         `json:"result"`
	Metadata ResultMetadata `json:"metadata"`
}

// StatusPayload is the external shape of a job's status
type StatusPayload struct {
	JobID       string    `json:"jobId"`
	DatasetID   string    `json:"datasetId"`
	ScheduleID  string    `json:"scheduleId,omitempty"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	CreatedAt   string    `json:"createdAt"`
	StartedAt   string    `json:"startedAt,omitempty"`
	CompletedAt string    `json:"completedAt,omitempty"`
	CancelledAt string    `json:"cancelledAt,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// FormatTimestamp renders t with TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTimestamp(*t)
}

// FormatResult builds the external result payload. A job without a result
// yields a zero Result. The job is not modified.
func FormatResult(job *Job) ResultPayload {
	payload := ResultPayload{
		Metadata: ResultMetadata{
			JobID:       job.ID,
			DatasetID:   job.DatasetID,
			CompletedAt: formatOptional(job.CompletedAt),
		},
	}
	if job.Result != nil {
		payload.Result = *job.Result
	}
	return payload
}

// FormatStatus builds the external status payload. The job is not modified.
func FormatStatus(job *Job) StatusPayload {
	return StatusPayload{
		JobID:       job.ID,
		DatasetID:   job.DatasetID,
		ScheduleID:  job.ScheduleID,
		Status:      job.Status,
		Progress:    job.Progress,
		CreatedAt:   FormatTimestamp(job.CreatedAt),
		StartedAt:   formatOptional(job.StartedAt),
		CompletedAt: formatOptional(job.CompletedAt),
		CancelledAt: formatOptional(job.CancelledAt),
		Error:       job.Error,
	}
}
