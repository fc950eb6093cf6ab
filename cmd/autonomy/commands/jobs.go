package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/pulse/async"
	"github.com/teranos/autonomy/sym"
)

// JobsCmd inspects stored jobs
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: sym.Pulse + " Inspect stored jobs",
	Long: sym.Pulse + ` jobs - Inspect jobs in the SQLite store

Reads the database directly, so it works while the server is stopped.

Examples:
  autonomy jobs ls                        # First page of job history
  autonomy jobs ls --status failed        # Only failed jobs
  autonomy jobs status <job-id>           # Full record of one job`,
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs in creation order",
	RunE:  runJobsLs,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var (
	jobsStatusFlag string
	jobsPageFlag   int
	jobsLimitFlag  int
)

func init() {
	jobsLsCmd.Flags().StringVar(&jobsStatusFlag, "status", "", "Filter by status (pending, running, completed, failed, cancelled)")
	jobsLsCmd.Flags().IntVar(&jobsPageFlag, "page", 1, "Page number (1-based)")
	jobsLsCmd.Flags().IntVar(&jobsLimitFlag, "limit", 20, "Jobs per page")

	JobsCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Database path (overrides database.path)")
	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsStatusCmd)
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	filter := async.ListFilter{Page: jobsPageFlag, Limit: jobsLimitFlag}
	if jobsStatusFlag != "" {
		if !async.IsValidStatus(jobsStatusFlag) {
			return errors.Newf("invalid status %q", jobsStatusFlag)
		}
		s := async.JobStatus(jobsStatusFlag)
		filter.Status = &s
	}

	database, _, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	jobs, total, err := async.NewSQLStore(database).List(context.Background(), filter)
	if err != nil {
		return errors.Wrap(err, "failed to list jobs")
	}
	if len(jobs) == 0 {
		fmt.Printf("%s No jobs found\n", sym.Pulse)
		return nil
	}

	table := pterm.TableData{{"JOB ID", "DATASET", "STATUS", "PROGRESS", "SCHEDULE", "CREATED"}}
	for _, job := range jobs {
		table = append(table, []string{
			job.ID,
			truncate(job.DatasetID, 24),
			string(job.Status),
			fmt.Sprintf("%d%%", job.Progress),
			job.ScheduleID,
			job.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
		return errors.Wrap(err, "failed to render table")
	}

	fmt.Printf("\nPage %d, %d of %d job(s)\n", filter.Page, len(jobs), total)
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	job, err := async.NewSQLStore(database).Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	status := async.FormatStatus(job)
	fmt.Printf("%s Job %s\n", sym.Pulse, job.ID)
	fmt.Printf("  Dataset:   %s\n", status.DatasetID)
	fmt.Printf("  Status:    %s (%d%%)\n", status.Status, status.Progress)
	fmt.Printf("  Created:   %s\n", status.CreatedAt)
	if status.StartedAt != "" {
		fmt.Printf("  Started:   %s\n", status.StartedAt)
	}
	if status.CompletedAt != "" {
		fmt.Printf("  Completed: %s\n", status.CompletedAt)
	}
	if status.CancelledAt != "" {
		fmt.Printf("  Cancelled: %s (%s)\n", status.CancelledAt, job.CancelReason)
	}
	if job.Actor != "" {
		fmt.Printf("  Actor:     %s\n", job.Actor)
	}
	if job.ScheduleID != "" {
		fmt.Printf("  Schedule:  %s\n", job.ScheduleID)
	}
	if job.Error != "" {
		fmt.Printf("  Error:     %s\n", job.Error)
	}
	if job.Result != nil {
		fmt.Printf("  Result:    accuracy=%.4f iterations=%d convergence=%t\n",
			job.Result.Accuracy, job.Result.Iterations, job.Result.Convergence)
	}
	return nil
}

// truncate shortens s to max runes with an ellipsis
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
