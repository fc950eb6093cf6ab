package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/teranos/autonomy/errors"
)

// FileSchedule is one [[schedule]] entry of a schedules file:
//
//	[[schedule]]
//	id = "nightly-d1"
//	dataset_id = "d1"
//	cadence = "0 2 * * *"
//	start_at = 2026-11-01T00:00:00Z
//
//	[schedule.parameters]
//	depth = 3
type FileSchedule struct {
	ID         string                 `toml:"id"`
	DatasetID  string                 `toml:"dataset_id"`
	Cadence    string                 `toml:"cadence"`
	Enabled    *bool                  `toml:"enabled"`
	StartAt    *time.Time             `toml:"start_at"`
	Parameters map[string]interface{} `toml:"parameters"`
}

// ParametersJSON encodes the parameters table for the job record
func (f FileSchedule) ParametersJSON() (json.RawMessage, error) {
	if len(f.Parameters) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(f.Parameters)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode parameters of schedule %s", f.ID)
	}
	return data, nil
}

type scheduleFile struct {
	Schedules []FileSchedule `toml:"schedule"`
}

// LoadFile reads schedule definitions from a TOML file. Unknown keys,
// missing fields, bad cadences and duplicate ids are rejected.
func LoadFile(path string) ([]FileSchedule, error) {
	var file scheduleFile
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read schedules file %s", path)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.NewValidationError("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	seen := make(map[string]bool, len(file.Schedules))
	for i, entry := range file.Schedules {
		where := fmt.Sprintf("%s: schedule #%d", path, i+1)
		if entry.ID == "" {
			return nil, errors.NewValidationError("%s: id is required", where)
		}
		if seen[entry.ID] {
			return nil, errors.NewValidationError("%s: duplicate id %q", where, entry.ID)
		}
		seen[entry.ID] = true
		if entry.DatasetID == "" {
			return nil, errors.NewValidationError("%s: dataset_id is required", where)
		}
		if _, err := ParseCadence(entry.Cadence); err != nil {
			return nil, errors.Wrap(err, where)
		}
	}
	return file.Schedules, nil
}
