package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
const (
	FieldJobID      = "job_id"
	FieldScheduleID = "schedule_id"
	FieldDatasetID  = "dataset_id"
	FieldRequestID  = "request_id"
	FieldPrincipal  = "principal"

	FieldComponent = "component"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldRemote    = "remote"

	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldStatus     = "status"
	FieldFrom       = "from"
	FieldProgress   = "progress"
	FieldCount      = "count"

	FieldSymbol = "symbol"
)

type contextKey string

const (
	jobIDKey     contextKey = "logger_job_id"
	requestIDKey contextKey = "logger_request_id"
)

// WithJobID adds a job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if jobID, ok := ctx.Value(jobIDKey).(string); ok && jobID != "" {
		fields = append(fields, FieldJobID, jobID)
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}

	return fields
}

// FromContext returns base enriched with the fields carried by ctx.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
//
//	m := &Manager{logger: logger.ComponentLogger("pulse.manager")}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
