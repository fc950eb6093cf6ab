package async

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatResult(t *testing.T) {
	local := time.FixedZone("CET", 3600)
	job := runningJob(t, "j1", "d1", t0)
	job.Complete(Result{Accuracy: 0.93, Iterations: 100, Convergence: true}, time.Date(2026, 3, 1, 10, 0, 5, 123456789, local))
	before := job.Clone()

	payload := FormatResult(job)

	assert.Equal(t, before, job, "formatting never mutates the job")
	assert.Equal(t, "j1", payload.Metadata.JobID)
	assert.Equal(t, "d1", payload.Metadata.DatasetID)
	assert.Equal(t, "2026-03-01T09:00:05.123Z", payload.Metadata.CompletedAt, "UTC, millisecond precision")

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"result": {"accuracy": 0.93, "iterations": 100, "convergence": true},
		"metadata": {"jobId": "j1", "datasetId": "d1", "completedAt": "2026-03-01T09:00:05.123Z"}
	}`, string(data))
}

func TestFormatStatus(t *testing.T) {
	job := runningJob(t, "j1", "d1", t0)
	job.UpdateProgress(42, t0.Add(time.Second))

	data, err := json.Marshal(FormatStatus(job))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"jobId": "j1",
		"datasetId": "d1",
		"status": "running",
		"progress": 42,
		"createdAt": "2026-03-01T09:00:00.000Z",
		"startedAt": "2026-03-01T09:00:00.000Z"
	}`, string(data), "unset optional fields are omitted")

	job.Cancel("stop", t0.Add(2*time.Second))
	status := FormatStatus(job)
	assert.Equal(t, JobStatusCancelled, status.Status)
	assert.Equal(t, "2026-03-01T09:00:02.000Z", status.CancelledAt)
	assert.Empty(t, status.CompletedAt)
}
