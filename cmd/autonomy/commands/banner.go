package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/teranos/autonomy/logger"
	"github.com/teranos/autonomy/sym"
	"github.com/teranos/autonomy/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(verbosity int, addr, storage string, tickerOn, authOn bool) {
	versionInfo := version.Get()

	pterm.DefaultHeader.WithFullWidth().Println(sym.Pulse + " autonomy")

	lines := []string{
		fmt.Sprintf("Version:   %s (commit %s)", versionInfo.Version, versionInfo.Short()),
		fmt.Sprintf("Built:     %s", versionInfo.BuildTime),
		fmt.Sprintf("Verbosity: %s", logger.LevelName(verbosity)),
		fmt.Sprintf("Listening: http://%s", addr),
		fmt.Sprintf("Storage:   %s", storage),
		fmt.Sprintf("Schedules: %s", onOff(tickerOn)),
		fmt.Sprintf("Auth:      %s", onOff(authOn)),
	}
	pterm.DefaultBox.WithTitle("autonomy info").Println(strings.Join(lines, "\n"))

	pterm.Info.Println("Press Ctrl+C to stop")
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
