package server

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/pulse/async"
)

const (
	maxDatasetIDLength = 256
	maxReasonLength    = 1024
)

func validateDatasetID(id string) error {
	if id == "" {
		return errors.NewValidationError("datasetId is required")
	}
	if len(id) > maxDatasetIDLength {
		return errors.NewValidationError("datasetId must be at most %d characters", maxDatasetIDLength)
	}
	return nil
}

// normalizeObject checks that raw is a JSON object. Absent and null both
// normalize to nil.
func normalizeObject(field string, raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '{' {
		return nil, errors.NewValidationError("%s must be a JSON object", field)
	}
	return trimmed, nil
}

func validateReason(field, reason string) error {
	if len(reason) > maxReasonLength {
		return errors.NewValidationError("%s must be at most %d characters", field, maxReasonLength)
	}
	return nil
}

func validateSubmit(req *SubmitRequest) error {
	if err := validateDatasetID(req.DatasetID); err != nil {
		return err
	}
	var err error
	if req.Parameters, err = normalizeObject("parameters", req.Parameters); err != nil {
		return err
	}
	if req.Options, err = normalizeObject("options", req.Options); err != nil {
		return err
	}
	return nil
}

// parseStatusFilter validates the optional status query parameter
func parseStatusFilter(value string) (*async.JobStatus, error) {
	if value == "" {
		return nil, nil
	}
	if !async.IsValidStatus(value) {
		return nil, errors.NewValidationError("invalid status %q", value)
	}
	status := async.JobStatus(value)
	return &status, nil
}

// splitScheduleOptions separates schedule options from the keys forwarded
// to spawned jobs
func splitScheduleOptions(raw json.RawMessage) (ScheduleOptions, *time.Time, json.RawMessage, error) {
	var opts ScheduleOptions
	raw, err := normalizeObject("options", raw)
	if err != nil || raw == nil {
		return opts, nil, nil, err
	}

	if err := json.Unmarshal(raw, &opts); err != nil {
		return opts, nil, nil, errors.Mark(errors.Wrap(err, "invalid options"), errors.ErrValidationFailed)
	}

	var startAt *time.Time
	if opts.StartAt != nil {
		t, err := time.Parse(time.RFC3339, *opts.StartAt)
		if err != nil {
			return opts, nil, nil, errors.NewValidationError("options.startAt must be an RFC 3339 timestamp")
		}
		startAt = &t
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return opts, nil, nil, errors.Mark(errors.Wrap(err, "invalid options"), errors.ErrValidationFailed)
	}
	delete(fields, "enabled")
	delete(fields, "startAt")
	if len(fields) == 0 {
		return opts, startAt, nil, nil
	}
	forwarded, err := json.Marshal(fields)
	if err != nil {
		return opts, nil, nil, errors.Wrap(err, "failed to encode job options")
	}
	return opts, startAt, forwarded, nil
}
