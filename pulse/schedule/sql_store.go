package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/teranos/autonomy/db"
	"github.com/teranos/autonomy/errors"
)

const scheduleColumns = `id, dataset_id, cadence, parameters, options, enabled,
	next_run_at, last_run_at, last_job_id, created_at, updated_at`

// SQLStore persists schedules in the autonomy_schedules SQLite table
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a schedule store on a migrated database
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var (
		s                   Schedule
		parameters, options sql.NullString
		enabled             int
		nextRun, lastRun    sql.NullString
		lastJobID           sql.NullString
		createdAt           string
		updatedAt           string
	)
	if err := row.Scan(&s.ID, &s.DatasetID, &s.Cadence, &parameters, &options, &enabled,
		&nextRun, &lastRun, &lastJobID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if parameters.Valid {
		s.Parameters = []byte(parameters.String)
	}
	if options.Valid {
		s.Options = []byte(options.String)
	}
	s.Enabled = enabled != 0
	s.LastJobID = lastJobID.String

	var err error
	if s.NextRunAt, err = db.ParseNullTime(nextRun); err != nil {
		return nil, err
	}
	if s.LastRunAt, err = db.ParseNullTime(lastRun); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (st *SQLStore) queryAll(ctx context.Context, query string, args ...interface{}) ([]*Schedule, error) {
	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query schedules")
	}
	defer rows.Close()

	schedules := make([]*Schedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan schedule")
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating schedules")
	}
	return schedules, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a schedule. An existing id is reported as InvalidState.
func (st *SQLStore) Create(ctx context.Context, s *Schedule) error {
	query := `
		INSERT INTO autonomy_schedules (` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	result, err := st.db.ExecContext(ctx, query,
		s.ID,
		s.DatasetID,
		s.Cadence,
		nullString(string(s.Parameters)),
		nullString(string(s.Options)),
		boolToInt(s.Enabled),
		db.NullTime(s.NextRunAt),
		db.NullTime(s.LastRunAt),
		nullString(s.LastJobID),
		db.FormatTime(s.CreatedAt),
		db.FormatTime(s.UpdatedAt),
	)
	if err != nil {
		err = errors.Wrap(err, "failed to create schedule")
		return errors.WithDetail(err, fmt.Sprintf("Schedule ID: %s", s.ID))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewInvalidStateError("schedule %s already exists", s.ID)
	}
	return nil
}

// Get retrieves a schedule by ID
func (st *SQLStore) Get(ctx context.Context, id string) (*Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM autonomy_schedules WHERE id = ?`

	s, err := scanSchedule(st.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("schedule not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get schedule")
	}
	return s, nil
}

// List returns every schedule in creation order
func (st *SQLStore) List(ctx context.Context) ([]*Schedule, error) {
	return st.queryAll(ctx, `SELECT `+scheduleColumns+` FROM autonomy_schedules ORDER BY seq ASC`)
}

// SetEnabled flips the enabled flag, and next_run_at when next is set
func (st *SQLStore) SetEnabled(ctx context.Context, id string, enabled bool, next *time.Time, now time.Time) error {
	var (
		result sql.Result
		err    error
	)
	if next != nil {
		result, err = st.db.ExecContext(ctx, `
			UPDATE autonomy_schedules
			SET enabled = ?, next_run_at = ?, updated_at = ?
			WHERE id = ?
		`, boolToInt(enabled), db.FormatTime(*next), db.FormatTime(now), id)
	} else {
		result, err = st.db.ExecContext(ctx, `
			UPDATE autonomy_schedules
			SET enabled = ?, updated_at = ?
			WHERE id = ?
		`, boolToInt(enabled), db.FormatTime(now), id)
	}
	if err != nil {
		err = errors.Wrap(err, "failed to update schedule")
		return errors.WithDetail(err, fmt.Sprintf("Schedule ID: %s", id))
	}
	return requireRow(result, id)
}

// Delete removes a schedule. Jobs it spawned keep their schedule_id.
func (st *SQLStore) Delete(ctx context.Context, id string) error {
	result, err := st.db.ExecContext(ctx, `DELETE FROM autonomy_schedules WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete schedule")
	}
	return requireRow(result, id)
}

// ListDue returns enabled schedules whose next run is at or before now
func (st *SQLStore) ListDue(ctx context.Context, now time.Time) ([]*Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM autonomy_schedules
		WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC, seq ASC
	`
	return st.queryAll(ctx, query, db.FormatTime(now))
}

// NextDue returns the enabled schedule that runs soonest, or nil if none
func (st *SQLStore) NextDue(ctx context.Context) (*Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM autonomy_schedules
		WHERE enabled = 1 AND next_run_at IS NOT NULL
		ORDER BY next_run_at ASC, seq ASC
		LIMIT 1
	`
	s, err := scanSchedule(st.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next schedule")
	}
	return s, nil
}

// Advance records a run attempt and moves next_run_at
func (st *SQLStore) Advance(ctx context.Context, id string, next time.Time, lastRunAt *time.Time, lastJobID string, now time.Time) error {
	var (
		result sql.Result
		err    error
	)
	if lastRunAt != nil {
		result, err = st.db.ExecContext(ctx, `
			UPDATE autonomy_schedules
			SET next_run_at = ?, last_run_at = ?, last_job_id = ?, updated_at = ?
			WHERE id = ?
		`, db.FormatTime(next), db.FormatTime(*lastRunAt), nullString(lastJobID), db.FormatTime(now), id)
	} else {
		result, err = st.db.ExecContext(ctx, `
			UPDATE autonomy_schedules
			SET next_run_at = ?, updated_at = ?
			WHERE id = ?
		`, db.FormatTime(next), db.FormatTime(now), id)
	}
	if err != nil {
		err = errors.Wrap(err, "failed to advance schedule")
		return errors.WithDetail(err, fmt.Sprintf("Schedule ID: %s", id))
	}
	return requireRow(result, id)
}

func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("schedule not found: %s", id)
	}
	return nil
}
