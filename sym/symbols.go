// Package sym defines the symbols used to mark log lines and CLI output.
// They are stable across CLI, logs and documentation.
package sym

// Segment symbols.
const (
	AM         = "≡" // configuration and system settings
	Pulse      = "꩜" // job lifecycle, timers, schedules
	PulseOpen  = "✿" // graceful startup and job recovery
	PulseClose = "❀" // graceful shutdown
	DB         = "⊔" // database/storage layer
)

// CommandToSymbol maps CLI commands to their symbol.
var CommandToSymbol = map[string]string{
	"am":     AM,
	"jobs":   Pulse,
	"server": Pulse,
	"db":     DB,
}

// ForCommand returns the symbol for a CLI command, or "" if it has none.
func ForCommand(cmd string) string {
	return CommandToSymbol[cmd]
}
