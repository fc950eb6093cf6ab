package server

import (
	"net/http"

	"github.com/teranos/autonomy/auth"
	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/internal/util"
	"github.com/teranos/autonomy/pulse/async"
)

// actorFor names the caller recorded on submitted jobs
func actorFor(r *http.Request) string {
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		return p.ID
	}
	return ""
}

// HandleSubmit handles POST /submit
func (s *AutonomyServer) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := readJSON(r, &req, false); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := validateSubmit(&req); err != nil {
		s.writeServiceError(w, err)
		return
	}

	job, err := s.jobs.Submit(r.Context(), async.SubmitRequest{
		DatasetID:  req.DatasetID,
		Parameters: req.Parameters,
		Options:    req.Options,
		Actor:      actorFor(r),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{JobID: job.ID, Status: job.Status})
}

// HandleStatus handles GET /status/{jobId}
func (s *AutonomyServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetStatus(r.Context(), r.PathValue("jobId"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, async.FormatStatus(job))
}

// HandleResult handles GET /result/{jobId}. A job that has not completed
// answers 202 with its status and progress.
func (s *AutonomyServer) HandleResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("jobId")
	lookup, err := s.jobs.GetResult(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if lookup.Ready {
		writeJSON(w, http.StatusOK, lookup.Payload)
		return
	}
	writeJSON(w, http.StatusAccepted, JobStateResponse{
		JobID:    id,
		Status:   lookup.Status,
		Progress: util.Ptr(lookup.Progress),
		Error:    lookup.Job.Error,
	})
}

// HandleCancel handles POST /cancel/{jobId}
func (s *AutonomyServer) HandleCancel(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := readJSON(r, &req, true); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := validateReason("reason", req.Reason); err != nil {
		s.writeServiceError(w, err)
		return
	}

	job, err := s.jobs.Cancel(r.Context(), r.PathValue("jobId"), req.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobStateResponse{JobID: job.ID, Status: job.Status})
}

// HandleFail handles POST /fail/{jobId}
func (s *AutonomyServer) HandleFail(w http.ResponseWriter, r *http.Request) {
	var req FailRequest
	if err := readJSON(r, &req, true); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := validateReason("error", req.Error); err != nil {
		s.writeServiceError(w, err)
		return
	}

	job, err := s.jobs.Fail(r.Context(), r.PathValue("jobId"), req.Error)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobStateResponse{JobID: job.ID, Status: job.Status, Error: job.Error})
}

// HandleProgress handles POST /progress/{jobId}
func (s *AutonomyServer) HandleProgress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if err := readJSON(r, &req, false); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if req.Progress == nil {
		s.writeServiceError(w, errors.NewValidationError("progress is required"))
		return
	}

	job, err := s.jobs.ReportProgress(r.Context(), r.PathValue("jobId"), *req.Progress)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobStateResponse{JobID: job.ID, Status: job.Status, Progress: util.Ptr(job.Progress)})
}

// HandleDeleteJob handles DELETE /jobs/{jobId}
func (s *AutonomyServer) HandleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Delete(r.Context(), r.PathValue("jobId")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHistory handles GET /history?status&page&limit
func (s *AutonomyServer) HandleHistory(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()

	status, err := parseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if page < 1 {
		s.writeServiceError(w, errors.NewValidationError("page must be at least 1"))
		return
	}
	limit, err := queryInt(r, "limit", cfg.HistoryDefaultLimit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if limit < 1 {
		s.writeServiceError(w, errors.NewValidationError("limit must be at least 1"))
		return
	}
	if limit > cfg.HistoryMaxLimit {
		limit = cfg.HistoryMaxLimit
	}

	result, err := s.jobs.History(r.Context(), async.ListFilter{Status: status, Page: page, Limit: limit})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	jobs := make([]async.StatusPayload, 0, len(result.Jobs))
	for _, job := range result.Jobs {
		jobs = append(jobs, async.FormatStatus(job))
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Jobs:       jobs,
		Pagination: Pagination{Page: result.Page, Limit: result.Limit, Total: result.Total},
	})
}

// HandleStats handles GET /stats
func (s *AutonomyServer) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.jobs.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
