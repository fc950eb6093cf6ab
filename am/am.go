package am

import "time"

// Config represents the autonomy service configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Pulse    PulseConfig    `mapstructure:"pulse"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

// Database drivers
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// DatabaseConfig selects the job store backend
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or memory (default: sqlite)
	Path   string `mapstructure:"path"`   // SQLite file, ignored for memory
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port               int      `mapstructure:"port"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`       // WebSocket origin check
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"` // Per principal, 0 = unlimited
	RateLimitBurst     int      `mapstructure:"rate_limit_burst"`
}

// DefaultServerPort is used when server.port is not configured
const DefaultServerPort = 8877

// PulseConfig configures job execution and recurring schedules
type PulseConfig struct {
	CompletionDelayMs int `mapstructure:"completion_delay_ms"` // Delay before a running job completes (default: 5000)
	MaxRunning        int `mapstructure:"max_running"`         // Bound on non-terminal jobs, 0 = unbounded (default: 100)

	// How often the ticker checks for due schedules (0 disables the ticker)
	TickerIntervalSeconds int    `mapstructure:"ticker_interval_seconds"`
	SchedulesFile         string `mapstructure:"schedules_file"` // Optional TOML seed file

	HistoryDefaultLimit int `mapstructure:"history_default_limit"`
	HistoryMaxLimit     int `mapstructure:"history_max_limit"`
}

// AuthConfig configures API key authorization
type AuthConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	APIKeys []APIKeyConfig `mapstructure:"api_keys"`
}

// APIKeyConfig is one accepted key. Only the SHA-256 hex digest of the key is stored.
type APIKeyConfig struct {
	ID          string   `mapstructure:"id" json:"id" yaml:"id" toml:"id"`
	KeySHA256   string   `mapstructure:"key_sha256" json:"key_sha256" yaml:"key_sha256" toml:"key_sha256"`
	Permissions []string `mapstructure:"permissions" json:"permissions" yaml:"permissions" toml:"permissions"`
}

// LogConfig configures logger output
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

// CompletionDelay returns pulse.completion_delay_ms as a duration
func (c *Config) CompletionDelay() time.Duration {
	return time.Duration(c.Pulse.CompletionDelayMs) * time.Millisecond
}

// TickerInterval returns pulse.ticker_interval_seconds as a duration
func (c *Config) TickerInterval() time.Duration {
	return time.Duration(c.Pulse.TickerIntervalSeconds) * time.Second
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
