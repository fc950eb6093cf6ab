package async

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/teranos/autonomy/db"
	"github.com/teranos/autonomy/errors"
)

// SQLStore persists jobs in the autonomy_jobs SQLite table
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a job store on a migrated database
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullRaw(r []byte) sql.NullString {
	return sql.NullString{String: string(r), Valid: len(r) > 0}
}

// mutableArgs returns the values of every column that may change after insert,
// in the order used by Put and CompareAndSwap
func mutableArgs(job *Job) ([]interface{}, error) {
	resultJSON, err := MarshalResult(job.Result)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		job.Status,
		job.Progress,
		nullString(resultJSON),
		nullString(job.Error),
		nullString(job.CancelReason),
		db.NullTime(job.StartedAt),
		db.NullTime(job.CompletedAt),
		db.NullTime(job.CancelledAt),
		db.FormatTime(job.UpdatedAt),
	}, nil
}

const mutableSet = `status = ?, progress = ?, result = ?, error = ?, cancel_reason = ?,
		    started_at = ?, completed_at = ?, cancelled_at = ?, updated_at = ?`

// Put inserts a job, or replaces the mutable columns of an existing one
func (s *SQLStore) Put(ctx context.Context, job *Job) error {
	mutable, err := mutableArgs(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO autonomy_jobs (
			id, dataset_id, parameters, options, schedule_id, actor, created_at,
			status, progress, result, error, cancel_reason,
			started_at, completed_at, cancelled_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    status = excluded.status,
		    progress = excluded.progress,
		    result = excluded.result,
		    error = excluded.error,
		    cancel_reason = excluded.cancel_reason,
		    started_at = excluded.started_at,
		    completed_at = excluded.completed_at,
		    cancelled_at = excluded.cancelled_at,
		    updated_at = excluded.updated_at
	`

	args := append([]interface{}{
		job.ID,
		job.DatasetID,
		nullRaw(job.Parameters),
		nullRaw(job.Options),
		nullString(job.ScheduleID),
		nullString(job.Actor),
		db.FormatTime(job.CreatedAt),
	}, mutable...)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		err = errors.Wrap(err, "failed to store job")
		return errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
	}
	return nil
}

// Get retrieves a job by ID
func (s *SQLStore) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + ` FROM autonomy_jobs WHERE id = ?`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return job, nil
}

// List returns one page of jobs in insertion order
func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]*Job, int, error) {
	where := ""
	var args []interface{}
	if filter.Status != nil {
		where = ` WHERE status = ?`
		args = append(args, *filter.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM autonomy_jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count jobs")
	}

	query := `SELECT ` + StandardJobSelectColumns() + ` FROM autonomy_jobs` + where + ` ORDER BY seq ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset())
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	jobs := make([]*Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "error iterating jobs")
	}

	return jobs, total, nil
}

// Delete removes a job from the database
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM autonomy_jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("job not found: %s", id)
	}
	return nil
}

// CompareAndSwap updates the job only while its stored status is one of from.
// The status guard is part of the UPDATE so concurrent writers cannot both win.
func (s *SQLStore) CompareAndSwap(ctx context.Context, job *Job, from ...JobStatus) error {
	if len(from) == 0 {
		return errors.New("compare-and-swap requires at least one expected status")
	}

	mutable, err := mutableArgs(job)
	if err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	query := `UPDATE autonomy_jobs SET ` + mutableSet + ` WHERE id = ? AND status IN (` + placeholders + `)`

	args := append(mutable, job.ID)
	for _, status := range from {
		args = append(args, status)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		err = errors.Wrap(err, "failed to update job")
		return errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows > 0 {
		return nil
	}

	// Lost the race or wrong state; report which
	var current JobStatus
	err = s.db.QueryRowContext(ctx, `SELECT status FROM autonomy_jobs WHERE id = ?`, job.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError("job not found: %s", job.ID)
	}
	if err != nil {
		return errors.Wrap(err, "failed to read job status")
	}
	err = errors.NewInvalidStateError("job %s is %s", job.ID, current)
	return errors.WithDetail(err, fmt.Sprintf("Expected status: %v", from))
}

// SetProgress raises the progress of a running job. Status and the current
// progress are both part of the UPDATE guard, so a stale report that lost a
// race cannot lower the stored value.
func (s *SQLStore) SetProgress(ctx context.Context, id string, progress int, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE autonomy_jobs
		SET progress = ?, updated_at = ?
		WHERE id = ? AND status = ? AND progress <= ?
	`, progress, db.FormatTime(now), id, JobStatusRunning, progress)
	if err != nil {
		err = errors.Wrap(err, "failed to update progress")
		return errors.WithDetail(err, fmt.Sprintf("Job ID: %s", id))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows > 0 {
		return nil
	}

	var (
		current JobStatus
		stored  int
	)
	err = s.db.QueryRowContext(ctx, `SELECT status, progress FROM autonomy_jobs WHERE id = ?`, id).Scan(&current, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError("job not found: %s", id)
	}
	if err != nil {
		return errors.Wrap(err, "failed to read job progress")
	}
	if current != JobStatusRunning {
		return errors.NewInvalidStateError("job %s is not running (status: %s)", id, current)
	}
	return errors.NewValidationError("progress must be between %d and 99, got %d", stored, progress)
}

// CountByStatus returns the number of jobs per status
func (s *SQLStore) CountByStatus(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM autonomy_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs by status")
	}
	defer rows.Close()

	counts := make(map[JobStatus]int, len(AllStatuses))
	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan status count")
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating status counts")
	}
	return counts, nil
}
