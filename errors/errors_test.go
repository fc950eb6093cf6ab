package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		msg   string
	}{
		{"not found", NewNotFoundError("job not found: %s", "j1"), IsNotFoundError, "job not found: j1"},
		{"invalid state", NewInvalidStateError("job %s is %s", "j1", "completed"), IsInvalidStateError, "job j1 is completed"},
		{"validation", NewValidationError("datasetId is required"), IsValidationError, "datasetId is required"},
		{"capacity", NewCapacityExceededError("%d jobs running", 3), IsCapacityExceededError, "3 jobs running"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.True(t, tt.check(tt.err))
			assert.Equal(t, tt.msg, tt.err.Error())
		})
	}
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := NewNotFoundError("schedule not found: %s", "s1")
	err = Wrap(err, "failed to load schedule")
	err = WithDetail(err, "Schedule ID: s1")

	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsInvalidStateError(err))
	assert.Contains(t, err.Error(), "failed to load schedule")
	assert.Contains(t, GetAllDetails(err), "Schedule ID: s1")
}

func TestSentinelHelpersOnNil(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsInvalidStateError(nil))
	assert.False(t, IsValidationError(nil))
	assert.False(t, IsCapacityExceededError(nil))
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrNotFound, ErrInvalidState, ErrValidationFailed,
		ErrCapacityExceeded, ErrUnauthorized, ErrForbidden, ErrRateLimited}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, Is(a, b), "%v should not match %v", a, b)
		}
	}
}

func TestWrapKeepsStack(t *testing.T) {
	err := Wrap(New("base"), "context")
	assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go")
	assert.Nil(t, Wrap(nil, "context"))
}

func ExampleNewInvalidStateError() {
	err := NewInvalidStateError("job %s is not cancellable (status: %s)", "j1", "completed")
	fmt.Println(err, Is(err, ErrInvalidState))
	// Output: job j1 is not cancellable (status: completed) true
}
