package schedule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/autonomy/errors"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedules.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
[[schedule]]
id = "nightly-d1"
dataset_id = "d1"
cadence = "0 2 * * *"
start_at = 2026-11-01T00:00:00Z

[schedule.parameters]
depth = 3
since = "last_run"

[[schedule]]
id = "hourly-d2"
dataset_id = "d2"
cadence = "@hourly"
enabled = false
`)

	entries, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "nightly-d1", entries[0].ID)
	assert.Equal(t, "d1", entries[0].DatasetID)
	require.NotNil(t, entries[0].StartAt)
	assert.True(t, entries[0].StartAt.Equal(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, entries[0].Enabled)

	params, err := entries[0].ParametersJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"depth":3,"since":"last_run"}`, string(params))

	require.NotNil(t, entries[1].Enabled)
	assert.False(t, *entries[1].Enabled)
	params, err = entries[1].ParametersJSON()
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestLoadFile_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "[[schedule]]\nid = \"a\"\ndataset_id = \"d\"\ncadence = \"@daily\"\ncadense = \"@daily\"\n", "unknown keys"},
		{"missing id", "[[schedule]]\ndataset_id = \"d\"\ncadence = \"@daily\"\n", "id is required"},
		{"missing dataset", "[[schedule]]\nid = \"a\"\ncadence = \"@daily\"\n", "dataset_id is required"},
		{"duplicate id", "[[schedule]]\nid = \"a\"\ndataset_id = \"d\"\ncadence = \"@daily\"\n[[schedule]]\nid = \"a\"\ndataset_id = \"d\"\ncadence = \"@daily\"\n", "duplicate id"},
		{"bad cadence", "[[schedule]]\nid = \"a\"\ndataset_id = \"d\"\ncadence = \"sometimes\"\n", "invalid cadence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read schedules file")
}
