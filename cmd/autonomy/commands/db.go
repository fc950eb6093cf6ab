package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/autonomy/db"
	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/logger"
	"github.com/teranos/autonomy/pulse/async"
	"github.com/teranos/autonomy/pulse/schedule"
	"github.com/teranos/autonomy/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the autonomy database",
	Long: sym.DB + ` db - Manage the autonomy job database

Examples:
  autonomy db migrate               # Apply pending migrations
  autonomy db stats                 # Show job and schedule counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts per status and schedule totals",
	RunE:  runDbStats,
}

var dbPathFlag string

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Database path (overrides database.path)")
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, path, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	files, err := db.MigrationFiles()
	if err != nil {
		return err
	}
	pterm.Success.Printf("%s %s is at schema %s (%d migrations)\n", sym.DB, path, latestVersion(files), len(files))
	return nil
}

// latestVersion returns the numeric prefix of the last migration file
func latestVersion(files []string) string {
	if len(files) == 0 {
		return "none"
	}
	last := files[len(files)-1]
	for i, r := range last {
		if r < '0' || r > '9' {
			return last[:i]
		}
	}
	return last
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, path, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	counts, err := async.NewSQLStore(database).CountByStatus(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to count jobs")
	}
	schedules, err := schedule.NewService(schedule.NewSQLStore(database), logger.Logger).List(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list schedules")
	}
	enabled := 0
	for _, s := range schedules {
		if s.Enabled {
			enabled++
		}
	}

	fmt.Printf("%s Database Statistics\n", sym.DB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path: %s\n\n", path)

	total := 0
	fmt.Printf("Jobs:\n")
	for _, status := range []async.JobStatus{
		async.JobStatusPending, async.JobStatusRunning, async.JobStatusCompleted,
		async.JobStatusFailed, async.JobStatusCancelled,
	} {
		fmt.Printf("  %-10s %d\n", status, counts[status])
		total += counts[status]
	}
	fmt.Printf("  %-10s %d\n\n", "total", total)

	fmt.Printf("Schedules:   %d (%d enabled)\n", len(schedules), enabled)
	return nil
}
