package server

import (
	"net/http"

	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/pulse/async"
	"github.com/teranos/autonomy/pulse/schedule"
)

// toScheduleResponse converts a schedule to its camelCase wire shape
func toScheduleResponse(sched *schedule.Schedule) ScheduleResponse {
	resp := ScheduleResponse{
		ID:         sched.ID,
		DatasetID:  sched.DatasetID,
		Cadence:    sched.Cadence,
		Parameters: sched.Parameters,
		Options:    sched.Options,
		Enabled:    sched.Enabled,
		LastJobID:  sched.LastJobID,
		CreatedAt:  async.FormatTimestamp(sched.CreatedAt),
		UpdatedAt:  async.FormatTimestamp(sched.UpdatedAt),
	}
	if sched.NextRunAt != nil {
		resp.NextRunAt = async.FormatTimestamp(*sched.NextRunAt)
	}
	if sched.LastRunAt != nil {
		resp.LastRunAt = async.FormatTimestamp(*sched.LastRunAt)
	}
	return resp
}

// HandleCreateSchedule handles POST /schedule
func (s *AutonomyServer) HandleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := readJSON(r, &req, false); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := validateDatasetID(req.DatasetID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	params, err := normalizeObject("parameters", req.Parameters)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	opts, startAt, forwarded, err := splitScheduleOptions(req.Options)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	sched, err := s.schedules.Create(r.Context(), req.DatasetID, req.Cadence, params, schedule.Options{
		Enabled: opts.Enabled,
		StartAt: startAt,
		Raw:     forwarded,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleResponse(sched))
}

// HandleListSchedules handles GET /schedules
func (s *AutonomyServer) HandleListSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := s.schedules.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := ScheduleListResponse{Schedules: make([]ScheduleResponse, 0, len(list)), Count: len(list)}
	for _, sched := range list {
		resp.Schedules = append(resp.Schedules, toScheduleResponse(sched))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetSchedule handles GET /schedules/{id}
func (s *AutonomyServer) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.schedules.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(sched))
}

// HandleUpdateSchedule handles PATCH /schedules/{id}
func (s *AutonomyServer) HandleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req SchedulePatchRequest
	if err := readJSON(r, &req, false); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if req.Enabled == nil {
		s.writeServiceError(w, errors.NewValidationError("enabled is required"))
		return
	}

	sched, err := s.schedules.SetEnabled(r.Context(), r.PathValue("id"), *req.Enabled)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(sched))
}

// HandleDeleteSchedule handles DELETE /schedules/{id}. Jobs the schedule
// already spawned are kept.
func (s *AutonomyServer) HandleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.schedules.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
