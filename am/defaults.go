package am

import (
	"fmt"

	"github.com/spf13/viper"
)

var defaultAllowedOrigins = []string{
	"http://localhost",
	"https://localhost",
	"http://127.0.0.1",
	"https://127.0.0.1",
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "autonomy.db")

	// Server configuration defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", defaultAllowedOrigins)
	v.SetDefault("server.rate_limit_per_minute", 120)
	v.SetDefault("server.rate_limit_burst", 20)

	// Pulse (job lifecycle) defaults
	v.SetDefault("pulse.completion_delay_ms", 5000)
	v.SetDefault("pulse.max_running", 100)
	v.SetDefault("pulse.ticker_interval_seconds", 1)
	v.SetDefault("pulse.schedules_file", "")
	v.SetDefault("pulse.history_default_limit", 20)
	v.SetDefault("pulse.history_max_limit", 100)

	// Auth is off unless keys are configured
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_keys", []map[string]interface{}{})

	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "AUTONOMY_DATABASE_PATH")
	v.BindEnv("auth.enabled", "AUTONOMY_AUTH_ENABLED")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "autonomy.db"
	}
	return c.Database.Path
}

// GetServerPort returns server.port or DefaultServerPort when unset
func (c *Config) GetServerPort() int {
	if c.Server.Port == 0 {
		return DefaultServerPort
	}
	return c.Server.Port
}

// GetServerAllowedOrigins returns the allowed WebSocket origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return defaultAllowedOrigins
	}
	return c.Server.AllowedOrigins
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s(%s), Server: {Port: %d}, Pulse: {Delay: %dms, MaxRunning: %d}, Auth: %t}",
		c.Database.Driver, c.Database.Path, c.GetServerPort(),
		c.Pulse.CompletionDelayMs, c.Pulse.MaxRunning, c.Auth.Enabled)
}
