package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/teranos/autonomy/errors"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// readJSON decodes a JSON request body. An empty body is accepted only when
// allowEmpty is set, leaving v untouched.
func readJSON(r *http.Request, v interface{}, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return errors.NewValidationError("request body is required")
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return nil
			}
			return errors.NewValidationError("request body is required")
		}
		return errors.Mark(errors.Wrap(err, "invalid request body"), errors.ErrValidationFailed)
	}
	return nil
}

// queryInt parses an optional integer query parameter
func queryInt(r *http.Request, name string, defaultValue int) (int, error) {
	valueStr := r.URL.Query().Get(name)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.NewValidationError("%s must be an integer, got %q", name, valueStr)
	}
	return value, nil
}

// shortID truncates an ID to 8 characters for logging
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
