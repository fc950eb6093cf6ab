// Package errors provides error handling for autonomy.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// On top of that it defines the sentinel errors the job lifecycle surfaces to
// callers. Wrap them to add context; check them with errors.Is or the Is*
// helpers below.
//
//	if errors.IsNotFoundError(err) {
//	    // 404
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
	Mark               = crdb.Mark
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Sentinel errors for the job lifecycle.
var (
	// ErrNotFound indicates an unknown job or schedule id
	ErrNotFound = New("not found")

	// ErrInvalidState indicates a transition that is illegal from the current status
	ErrInvalidState = New("invalid state")

	// ErrValidationFailed indicates malformed input rejected before reaching the manager
	ErrValidationFailed = New("validation failed")

	// ErrCapacityExceeded indicates the running-job bound has been reached
	ErrCapacityExceeded = New("capacity exceeded")

	// ErrUnauthorized indicates missing or unknown credentials
	ErrUnauthorized = New("unauthorized")

	// ErrForbidden indicates the caller lacks the required permission
	ErrForbidden = New("forbidden")

	// ErrRateLimited indicates the caller exceeded its request budget
	ErrRateLimited = New("rate limited")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidStateError checks if an error is or wraps ErrInvalidState
func IsInvalidStateError(err error) bool {
	return err != nil && Is(err, ErrInvalidState)
}

// IsValidationError checks if an error is or wraps ErrValidationFailed
func IsValidationError(err error) bool {
	return err != nil && Is(err, ErrValidationFailed)
}

// IsCapacityExceededError checks if an error is or wraps ErrCapacityExceeded
func IsCapacityExceededError(err error) bool {
	return err != nil && Is(err, ErrCapacityExceeded)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// NewInvalidStateError creates an invalid-state error with a formatted message
func NewInvalidStateError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidState)
}

// NewValidationError creates a validation error with a formatted message
func NewValidationError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrValidationFailed)
}

// NewCapacityExceededError creates a capacity error with a formatted message
func NewCapacityExceededError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrCapacityExceeded)
}
