package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/autonomy/errors"
)

func TestParseCadence(t *testing.T) {
	tests := []struct {
		expr string
		from time.Time
		want time.Time
	}{
		{"0 2 * * *", t0, time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", t0, t0.Add(15 * time.Minute)},
		{"@hourly", t0, t0.Add(time.Hour)},
		{"@daily", t0, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"@every 30m", t0, t0.Add(30 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := ParseCadence(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, c.String())
			assert.True(t, tt.want.Equal(c.Next(tt.from)), "got %s", c.Next(tt.from))
		})
	}
}

func TestParseCadence_Invalid(t *testing.T) {
	for _, expr := range []string{"", "every day", "61 * * * *", "* * * *", "@every banana"} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseCadence(expr)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}
}

func TestCadence_NextIsStrictlyAfter(t *testing.T) {
	c, err := ParseCadence("0 9 * * *")
	require.NoError(t, err)

	// t0 is itself an activation
	assert.True(t, c.Next(t0).Equal(t0.Add(24*time.Hour)))
	assert.True(t, c.NextAtOrAfter(t0).Equal(t0))
	assert.True(t, c.NextAtOrAfter(t0.Add(time.Second)).Equal(t0.Add(24*time.Hour)))
}

func TestCadence_IntervalStartsAtStartTime(t *testing.T) {
	c, err := ParseCadence("@every 6h")
	require.NoError(t, err)
	assert.True(t, c.NextAtOrAfter(t0).Equal(t0))
}
