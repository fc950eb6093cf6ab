package async

import (
	"database/sql"

	"github.com/teranos/autonomy/db"
	"github.com/teranos/autonomy/errors"
)

// JobScanArgs holds the nullable column values scanned from a job row
type JobScanArgs struct {
	Parameters   sql.NullString
	Options      sql.NullString
	ScheduleID   sql.NullString
	Actor        sql.NullString
	ResultJSON   sql.NullString
	ErrorMsg     sql.NullString
	CancelReason sql.NullString
	CreatedAt    string
	StartedAt    sql.NullString
	CompletedAt  sql.NullString
	CancelledAt  sql.NullString
	UpdatedAt    string
}

// GetJobScanTargets returns scan destinations in the order of StandardJobSelectColumns
func GetJobScanTargets(job *Job, args *JobScanArgs) []interface{} {
	return []interface{}{
		&job.ID,
		&job.DatasetID,
		&args.Parameters,
		&args.Options,
		&args.ScheduleID,
		&args.Actor,
		&job.Status,
		&job.Progress,
		&args.ResultJSON,
		&args.ErrorMsg,
		&args.CancelReason,
		&args.CreatedAt,
		&args.StartedAt,
		&args.CompletedAt,
		&args.CancelledAt,
		&args.UpdatedAt,
	}
}

// ProcessJobScanArgs populates the job from the scanned nullable values
func ProcessJobScanArgs(job *Job, args *JobScanArgs) error {
	if args.Parameters.Valid {
		job.Parameters = []byte(args.Parameters.String)
	}
	if args.Options.Valid {
		job.Options = []byte(args.Options.String)
	}
	job.ScheduleID = args.ScheduleID.String
	job.Actor = args.Actor.String
	job.Error = args.ErrorMsg.String
	job.CancelReason = args.CancelReason.String

	if args.ResultJSON.Valid {
		result, err := UnmarshalResult(args.ResultJSON.String)
		if err != nil {
			return errors.Wrapf(err, "job %s", job.ID)
		}
		job.Result = result
	}

	var err error
	if job.CreatedAt, err = db.ParseTime(args.CreatedAt); err != nil {
		return errors.Wrapf(err, "job %s created_at", job.ID)
	}
	if job.UpdatedAt, err = db.ParseTime(args.UpdatedAt); err != nil {
		return errors.Wrapf(err, "job %s updated_at", job.ID)
	}
	if job.StartedAt, err = db.ParseNullTime(args.StartedAt); err != nil {
		return errors.Wrapf(err, "job %s started_at", job.ID)
	}
	if job.CompletedAt, err = db.ParseNullTime(args.CompletedAt); err != nil {
		return errors.Wrapf(err, "job %s completed_at", job.ID)
	}
	if job.CancelledAt, err = db.ParseNullTime(args.CancelledAt); err != nil {
		return errors.Wrapf(err, "job %s cancelled_at", job.ID)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanJob scans a single job from a *sql.Row or *sql.Rows
func scanJob(row rowScanner) (*Job, error) {
	var job Job
	args := &JobScanArgs{}
	if err := row.Scan(GetJobScanTargets(&job, args)...); err != nil {
		return nil, err
	}
	if err := ProcessJobScanArgs(&job, args); err != nil {
		return nil, err
	}
	return &job, nil
}

// StandardJobSelectColumns returns the standard column list for job SELECT queries
func StandardJobSelectColumns() string {
	return `id, dataset_id, parameters, options,
		schedule_id, actor, status, progress,
		result, error, cancel_reason,
		created_at, started_at, completed_at, cancelled_at, updated_at`
}
