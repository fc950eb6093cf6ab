package server

import (
	"fmt"
	"math"
	"net/http"

	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/logger"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

// statusForError maps a sentinel to its HTTP status and error code
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errors.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, errors.ErrValidationFailed):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, errors.ErrCapacityExceeded):
		return http.StatusServiceUnavailable, "capacity_exceeded"
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errors.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeServiceError renders err as an ErrorResponse with the mapped status.
// Internal errors are logged and their message is not exposed.
func (s *AutonomyServer) writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)

	resp := ErrorResponse{Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		s.logger.Errorw("Request failed", logger.FieldError, fmt.Sprintf("%+v", err))
		resp.Error = "internal server error"
	} else {
		resp.Details = append(errors.GetAllDetails(err), errors.GetAllHints(err)...)
	}

	switch status {
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", s.retryAfter())
	case http.StatusTooManyRequests:
		w.Header().Set("Retry-After", "60")
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="autonomy"`)
	}

	writeJSON(w, status, resp)
}

// retryAfter is the completion delay rounded up to whole seconds, at least 1
func (s *AutonomyServer) retryAfter() string {
	seconds := int(math.Ceil(s.jobs.Config().CompletionDelay.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}
