package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/logger"
	"github.com/teranos/autonomy/pulse/async"
	"github.com/teranos/autonomy/pulse/schedule"
	"github.com/teranos/autonomy/sym"
)

// SchedulesCmd inspects recurring schedules
var SchedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: sym.Pulse + " Inspect recurring schedules",
	Long: sym.Pulse + ` schedules - Inspect recurring schedules

Examples:
  autonomy schedules ls                     # Schedules in the SQLite store
  autonomy schedules check schedules.toml   # Validate a seed file`,
}

var schedulesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List schedules in creation order",
	RunE:  runSchedulesLs,
}

var schedulesCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a schedules seed file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedulesCheck,
}

func init() {
	SchedulesCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Database path (overrides database.path)")
	SchedulesCmd.AddCommand(schedulesLsCmd)
	SchedulesCmd.AddCommand(schedulesCheckCmd)
}

func runSchedulesLs(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	list, err := schedule.NewService(schedule.NewSQLStore(database), logger.Logger).List(context.Background())
	if err != nil {
		return errors.Wrap(err, "failed to list schedules")
	}
	if len(list) == 0 {
		fmt.Printf("%s No schedules found\n", sym.Pulse)
		return nil
	}

	table := pterm.TableData{{"ID", "DATASET", "CADENCE", "ENABLED", "NEXT RUN", "LAST JOB"}}
	for _, s := range list {
		next := "-"
		if s.NextRunAt != nil && s.Enabled {
			next = async.FormatTimestamp(*s.NextRunAt)
		}
		table = append(table, []string{
			s.ID,
			truncate(s.DatasetID, 24),
			s.Cadence,
			fmt.Sprintf("%t", s.Enabled),
			next,
			s.LastJobID,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
}

func runSchedulesCheck(cmd *cobra.Command, args []string) error {
	entries, err := schedule.LoadFile(args[0])
	if err != nil {
		return err
	}
	pterm.Success.Printf("%s %d schedule(s) in %s are valid\n", sym.Pulse, len(entries), args[0])
	return nil
}
