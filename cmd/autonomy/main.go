package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/autonomy/am"
	"github.com/teranos/autonomy/cmd/autonomy/commands"
	"github.com/teranos/autonomy/logger"
)

var rootCmd = &cobra.Command{
	Use:   "autonomy",
	Short: "autonomy - job lifecycle service for autonomy recomputation",
	Long: `autonomy - submit, track and schedule autonomy recomputation jobs.

Available commands:
  am        - Manage autonomy configuration ("I am")
  db        - Manage the job database
  jobs      - Inspect stored jobs
  schedules - Inspect and validate recurring schedules
  server    - Start the HTTP/WebSocket job API
  version   - Show build information

Examples:
  autonomy am show              # Show current configuration
  autonomy server               # Start the job API
  autonomy jobs ls --status running
  autonomy db stats             # Show job counts per status`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 'am show' output must stay machine-readable
		if cmd.Name() == "show" {
			return nil
		}

		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs := false
		if cfg, err := am.Load(); err == nil {
			jsonLogs = cfg.Log.JSON
		}
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.SchedulesCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
