package server

import (
	"encoding/json"

	"github.com/teranos/autonomy/pulse/async"
)

const (
	// MaxClients is the maximum number of concurrent WebSocket clients
	MaxClients = 100

	// clientSendBufferSize is the per-client outbound message buffer
	clientSendBufferSize = 256

	// APIPrefix is the path prefix of every autonomy endpoint
	APIPrefix = "/api/autonomy"
)

// ServerState represents the server lifecycle state
type ServerState int

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Graceful shutdown in progress
	ServerStateStopped                     // Shutdown complete
)

// SubmitRequest is the body of POST /submit
type SubmitRequest struct {
	DatasetID  string          `json:"datasetId"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Options    json.RawMessage `json:"options,omitempty"`
}

// SubmitResponse acknowledges a submitted job
type SubmitResponse struct {
	JobID  string          `json:"jobId"`
	Status async.JobStatus `json:"status"`
}

// ReasonRequest is the body of POST /cancel/{jobId}
type ReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

// FailRequest is the body of POST /fail/{jobId}
type FailRequest struct {
	Error string `json:"error"`
}

// ProgressRequest is the body of POST /progress/{jobId}
type ProgressRequest struct {
	Progress *int `json:"progress"`
}

// JobStateResponse reports a job's status after a transition, or while its
// result is not ready
type JobStateResponse struct {
	JobID    string          `json:"jobId"`
	Status   async.JobStatus `json:"status"`
	Progress *int            `json:"progress,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Pagination describes one page of a listing
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// HistoryResponse is the body of GET /history
type HistoryResponse struct {
	Jobs       []async.StatusPayload `json:"jobs"`
	Pagination Pagination            `json:"pagination"`
}

// ScheduleOptions is the options object of POST /schedule. Keys other than
// enabled and startAt are forwarded to every spawned job.
type ScheduleOptions struct {
	Enabled *bool   `json:"enabled,omitempty"`
	StartAt *string `json:"startAt,omitempty"`
}

// ScheduleRequest is the body of POST /schedule
type ScheduleRequest struct {
	DatasetID  string          `json:"datasetId"`
	Cadence    string          `json:"cadence"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Options    json.RawMessage `json:"options,omitempty"`
}

// SchedulePatchRequest is the body of PATCH /schedules/{id}
type SchedulePatchRequest struct {
	Enabled *bool `json:"enabled"`
}

// ScheduleResponse is the external shape of a schedule
type ScheduleResponse struct {
	ID         string          `json:"id"`
	DatasetID  string          `json:"datasetId"`
	Cadence    string          `json:"cadence"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Options    json.RawMessage `json:"options,omitempty"`
	Enabled    bool            `json:"enabled"`
	NextRunAt  string          `json:"nextRunAt,omitempty"`
	LastRunAt  string          `json:"lastRunAt,omitempty"`
	LastJobID  string          `json:"lastJobId,omitempty"`
	CreatedAt  string          `json:"createdAt"`
	UpdatedAt  string          `json:"updatedAt"`
}

// ScheduleListResponse is the body of GET /schedules
type ScheduleListResponse struct {
	Schedules []ScheduleResponse `json:"schedules"`
	Count     int                `json:"count"`
}

// JobUpdateMessage is pushed to WebSocket clients after every job mutation
type JobUpdateMessage struct {
	Type string              `json:"type"` // "job_update"
	Job  async.StatusPayload `json:"job"`
}

// VersionMessage is the first message on every WebSocket connection
type VersionMessage struct {
	Type      string `json:"type"` // "version"
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Commit  string                 `json:"commit"`
	State   string                 `json:"state"`
	Clients int                    `json:"clients"`
	Jobs    *async.Stats           `json:"jobs,omitempty"`
	Memory  async.SystemMetrics    `json:"memory"`
	Ticker  map[string]interface{} `json:"ticker,omitempty"`
}
